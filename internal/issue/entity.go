package issue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/github/rollup-and-away/internal/domain"
	"github.com/rs/zerolog"
)

// Fetcher is the tracker collaborator. The core never performs network I/O
// itself; everything remote goes through this interface.
type Fetcher interface {
	IssuesForRepo(ctx context.Context, org, repo string) (domain.Batch, error)
	IssuesForProject(ctx context.Context, org string, project int) (domain.Batch, error)
	IssuesForView(ctx context.Context, org string, project, view int) (domain.Batch, error)
	SubIssues(ctx context.Context, parent domain.Ref) ([]domain.Record, error)
	CommentsForIssue(ctx context.Context, ref domain.Ref, limit int) ([]domain.Comment, error)
	CommentsForIssues(ctx context.Context, refs []domain.Ref, limit int) (map[domain.Ref][]domain.Comment, error)
	FieldsForIssue(ctx context.Context, ref domain.Ref) (map[string]string, error)
	ProjectFieldsForIssues(ctx context.Context, org string, project int, refs []domain.Ref) (map[domain.Ref]map[string]domain.ProjectField, error)
	ResolveIssueURL(ctx context.Context, url string) (domain.Record, error)
}

// Entity wraps one raw issue record together with its enrichment state.
type Entity struct {
	rec      domain.Record
	subIssue bool

	project       int // project the entity is associated with, 0 if none
	issueFields   map[string]string
	projectFields map[string]domain.ProjectField

	comments     []domain.Comment // nil means never fetched
	updates      []domain.Comment // cached newest-first view of comments
	updatesDirty bool

	// Sub and Related are attached by enrichment. Sub is always set after a
	// sub-issue fetch (possibly empty); Related stays nil when no link-worthy
	// update exists. That asymmetry is deliberate.
	Sub     *Collection
	Related *Collection
}

func NewEntity(rec domain.Record) *Entity {
	e := &Entity{rec: rec, project: rec.Project}
	if len(rec.Fields) > 0 {
		e.projectFields = rec.Fields
	}
	return e
}

func (e *Entity) Ref() domain.Ref        { return e.rec.Ref() }
func (e *Entity) Org() string            { return e.rec.Org }
func (e *Entity) Repo() string           { return e.rec.Repo }
func (e *Entity) Number() int            { return e.rec.Number }
func (e *Entity) URL() string            { return e.rec.URL }
func (e *Entity) Title() string          { return e.rec.Title }
func (e *Entity) Body() string           { return e.rec.Body }
func (e *Entity) Closed() bool           { return e.rec.Closed }
func (e *Entity) CreatedAt() time.Time   { return e.rec.CreatedAt }
func (e *Entity) UpdatedAt() time.Time   { return e.rec.UpdatedAt }
func (e *Entity) Assignees() []string    { return e.rec.Assignees }
func (e *Entity) Labels() []string       { return e.rec.Labels }
func (e *Entity) Type() string           { return e.rec.Type }
func (e *Entity) Parent() *domain.ParentRef { return e.rec.Parent }
func (e *Entity) IsSubIssue() bool       { return e.subIssue }
func (e *Entity) Project() int           { return e.project }

// HasComments reports whether comments were ever fetched or assigned.
func (e *Entity) HasComments() bool { return e.comments != nil }

// SetComments replaces the raw comment array and invalidates the cached
// updates view.
func (e *Entity) SetComments(cs []domain.Comment) {
	if cs == nil {
		cs = []domain.Comment{}
	}
	e.comments = cs
	e.updatesDirty = true
}

// Updates returns the comments newest-first. The view is built lazily and
// rebuilt only after SetComments.
func (e *Entity) Updates() []domain.Comment {
	if e.comments == nil {
		return nil
	}
	if e.updates == nil || e.updatesDirty {
		e.updates = make([]domain.Comment, len(e.comments))
		copy(e.updates, e.comments)
		sort.SliceStable(e.updates, func(i, j int) bool {
			return e.updates[i].CreatedAt.After(e.updates[j].CreatedAt)
		})
		e.updatesDirty = false
	}
	return e.updates
}

// LatestUpdate returns the most recent update within tf, or nil.
func (e *Entity) LatestUpdate(tf Timeframe) *domain.Comment {
	us := e.Updates()
	if len(us) == 0 {
		return nil
	}
	// Updates are newest-first; if the first one falls outside the
	// timeframe none of the others qualify either.
	if tf.Contains(us[0].CreatedAt) {
		return &us[0]
	}
	return nil
}

// AttachProjectFields associates the entity with a project and stores its
// field values. An entity belongs to at most one project: attaching fields
// for a different project number is a hard error.
func (e *Entity) AttachProjectFields(project int, fields map[string]domain.ProjectField) error {
	if project <= 0 {
		return fmt.Errorf("issue %s: invalid project number %d", e.Ref(), project)
	}
	if e.project != 0 && e.project != project {
		return fmt.Errorf("issue %s: already carries fields for project %d, cannot attach project %d", e.Ref(), e.project, project)
	}
	e.project = project
	e.projectFields = fields
	return nil
}

// ProjectFields returns the current project field values (possibly a
// placeholder until a project-fields fetch replaces it).
func (e *Entity) ProjectFields() map[string]domain.ProjectField { return e.projectFields }

// SetIssueFields stores the custom per-issue field mapping.
func (e *Entity) SetIssueFields(m map[string]string) { e.issueFields = m }

// Enrich runs the per-entity enrichment steps in order: comments, issue
// fields, project fields, sub-issues, link-following. Every step is
// memoized and fetch failures of the best-effort steps degrade to warnings.
func (e *Entity) Enrich(ctx context.Context, f Fetcher, log zerolog.Logger, opts FetchOptions) error {
	// Comments: presence-check memoization, re-enriching is a silent no-op.
	if e.comments == nil && opts.Comments > 0 && opts.Timeframe.Contains(e.rec.UpdatedAt) {
		cs, err := f.CommentsForIssue(ctx, e.Ref(), opts.Comments)
		if err != nil {
			return fmt.Errorf("fetch comments for %s: %w", e.Ref(), err)
		}
		e.SetComments(cs)
	}

	if opts.IssueFields && e.issueFields == nil {
		m, err := f.FieldsForIssue(ctx, e.Ref())
		if err != nil {
			return fmt.Errorf("fetch issue fields for %s: %w", e.Ref(), err)
		}
		if m == nil {
			m = map[string]string{}
		}
		e.issueFields = m
	}

	if opts.ProjectFields && e.project > 0 && e.projectFields == nil {
		got, err := f.ProjectFieldsForIssues(ctx, e.rec.Org, e.project, []domain.Ref{e.Ref()})
		if err != nil {
			return fmt.Errorf("fetch project fields for %s: %w", e.Ref(), err)
		}
		if fields, ok := got[e.Ref()]; ok {
			if err := e.AttachProjectFields(e.project, fields); err != nil {
				return err
			}
		}
	}

	if opts.SubIssues && e.Sub == nil {
		if err := e.fetchSubIssues(ctx, f, log, opts); err != nil {
			return err
		}
	}

	if opts.FollowLinks && e.Related == nil {
		if err := e.followLinks(ctx, f, log, opts); err != nil {
			return err
		}
	}
	return nil
}

// fetchSubIssues builds the nested sub-issue collection. A tracker failure is
// downgraded to an empty collection with a warning; the collection is always
// attached afterwards.
func (e *Entity) fetchSubIssues(ctx context.Context, f Fetcher, log zerolog.Logger, opts FetchOptions) error {
	recs, err := f.SubIssues(ctx, e.Ref())
	if err != nil {
		log.Warn().Err(err).Stringer("issue", e.Ref()).Msg("sub-issue fetch failed, continuing with empty collection")
		recs = nil
	}
	sub := &Collection{
		Title:   "Sub-issues of " + e.rec.Title,
		URL:     e.rec.URL,
		Org:     e.rec.Org,
		Project: e.project,
	}
	for _, rec := range recs {
		en := NewEntity(rec)
		en.subIssue = true
		if e.project > 0 && en.project == 0 {
			en.project = e.project
		}
		sub.issues = append(sub.issues, en)
	}
	nested := opts
	nested.Filter = nil
	if err := sub.Fetch(ctx, f, log, nested); err != nil {
		return err
	}
	e.Sub = sub
	return nil
}

// followLinks scans the most recent qualifying update for embedded issue
// references and resolves each into a related-issues collection. Individual
// resolution failures are warnings. When no link-worthy update exists the
// related collection is left absent, unlike sub-issues which always attach.
func (e *Entity) followLinks(ctx context.Context, f Fetcher, log zerolog.Logger, opts FetchOptions) error {
	u := e.LatestUpdate(opts.Timeframe)
	if u == nil {
		return nil
	}
	urls := ExtractIssueURLs(u.Body)
	if len(urls) == 0 {
		return nil
	}
	rel := &Collection{
		Title: "Issues related to " + e.rec.Title,
		URL:   e.rec.URL,
		Org:   e.rec.Org,
	}
	for _, raw := range urls {
		rec, err := f.ResolveIssueURL(ctx, raw)
		if err != nil {
			log.Warn().Err(err).Str("url", raw).Stringer("issue", e.Ref()).Msg("related issue resolve failed")
			continue
		}
		rel.issues = append(rel.issues, NewEntity(rec))
	}
	nested := opts
	nested.Filter = nil
	// Link-following disables itself on the derived collection; this is the
	// cycle-breaker for mutually referencing issues.
	nested.FollowLinks = false
	if err := rel.Fetch(ctx, f, log, nested); err != nil {
		return err
	}
	e.Related = rel
	return nil
}
