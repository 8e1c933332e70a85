package issue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/github/rollup-and-away/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const defaultConcurrency = 4

// Collection is an ordered set of entities plus the metadata of where they
// came from. Derived collections (GroupBy, Blame) share entity pointers with
// their parent.
type Collection struct {
	Title    string
	URL      string
	GroupKey string
	Org      string
	Project  int

	groupField string
	issues     []*Entity

	commentsFetched      bool
	issueFieldsFetched   bool
	projectFieldsFetched bool
}

// Null returns the empty sentinel collection used when every source of a
// rollup failed. It renders as a regular, empty collection.
func Null() *Collection {
	return &Collection{Title: "No Issues"}
}

func (c *Collection) Issues() []*Entity { return c.issues }
func (c *Collection) Len() int          { return len(c.issues) }
func (c *Collection) IsNull() bool      { return c.Title == "No Issues" && len(c.issues) == 0 }

func fromBatch(b domain.Batch) *Collection {
	c := &Collection{Title: b.Title, URL: b.URL, Org: b.Org, Project: b.Project}
	for _, rec := range b.Records {
		c.issues = append(c.issues, NewEntity(rec))
	}
	return c
}

// ForRepo builds a collection from the open issues of a single repository.
func ForRepo(ctx context.Context, f Fetcher, org, repo string) (*Collection, error) {
	b, err := f.IssuesForRepo(ctx, org, repo)
	if err != nil {
		return nil, fmt.Errorf("list issues for %s/%s: %w", org, repo, err)
	}
	return fromBatch(b), nil
}

// ForProject builds a collection from a project board. Project field values
// arrive with the item listing, so the project-field fetch is pre-satisfied.
func ForProject(ctx context.Context, f Fetcher, org string, project int) (*Collection, error) {
	b, err := f.IssuesForProject(ctx, org, project)
	if err != nil {
		return nil, fmt.Errorf("list issues for project %s/%d: %w", org, project, err)
	}
	c := fromBatch(b)
	c.projectFieldsFetched = true
	return c, nil
}

// ForView builds a collection from a saved project view. When the view's
// filter references fields the listing did not include, the field fetch runs
// eagerly so the filter can be applied.
func ForView(ctx context.Context, f Fetcher, log zerolog.Logger, org string, project, view int) (*Collection, error) {
	b, err := f.IssuesForView(ctx, org, project, view)
	if err != nil {
		return nil, fmt.Errorf("list issues for view %s/%d/%d: %w", org, project, view, err)
	}
	c := fromBatch(b)
	c.projectFieldsFetched = true
	if len(b.FieldRefs) > 0 {
		if err := c.fetchProjectFields(ctx, f); err != nil {
			return nil, err
		}
	}
	if b.Filter != "" {
		c.applyQuery(log, b.Filter)
	}
	return c, nil
}

// ForURLs builds a collection from explicit issue URLs. Individual failures
// are logged and skipped; the Null collection stands in when nothing at all
// resolved.
func ForURLs(ctx context.Context, f Fetcher, log zerolog.Logger, urls []string) *Collection {
	c := &Collection{Title: "Issues"}
	for _, u := range urls {
		rec, err := f.ResolveIssueURL(ctx, u)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("issue url resolve failed, skipping")
			continue
		}
		c.issues = append(c.issues, NewEntity(rec))
	}
	if len(c.issues) == 0 {
		return Null()
	}
	return c
}

// applyQuery keeps only the entities matching a project view filter of the
// form "field:value field:\"quoted value\" -field:excluded". Unsupported
// terms are logged and ignored.
func (c *Collection) applyQuery(log zerolog.Logger, query string) {
	terms := parseQuery(query)
	if len(terms) == 0 {
		return
	}
	kept := c.issues[:0]
	for _, e := range c.issues {
		if matchesQuery(e, terms, log) {
			kept = append(kept, e)
		}
	}
	c.issues = kept
}

type queryTerm struct {
	field  string
	value  string
	negate bool
}

func parseQuery(q string) []queryTerm {
	var terms []queryTerm
	for _, tok := range splitQueryTokens(q) {
		neg := strings.HasPrefix(tok, "-")
		if neg {
			tok = tok[1:]
		}
		field, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		terms = append(terms, queryTerm{field: field, value: value, negate: neg})
	}
	return terms
}

// splitQueryTokens splits on spaces while honoring double quotes.
func splitQueryTokens(q string) []string {
	var toks []string
	var cur strings.Builder
	quoted := false
	for _, r := range q {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}

func matchesQuery(e *Entity, terms []queryTerm, log zerolog.Logger) bool {
	for _, t := range terms {
		var match bool
		switch normKey(t.field) {
		case "is":
			switch t.value {
			case "open":
				match = !e.Closed()
			case "closed":
				match = e.Closed()
			case "issue":
				match = true
			default:
				log.Debug().Str("term", t.value).Msg("unsupported is: filter term, ignoring")
				continue
			}
		case "no":
			match = e.Field(t.value) == ""
		default:
			match = strings.EqualFold(e.Field(t.field), t.value)
		}
		if match == t.negate {
			return false
		}
	}
	return true
}

func (c *Collection) refs() []domain.Ref {
	out := make([]domain.Ref, len(c.issues))
	for i, e := range c.issues {
		out[i] = e.Ref()
	}
	return out
}

func (c *Collection) fetchProjectFields(ctx context.Context, f Fetcher) error {
	if c.Project <= 0 || len(c.issues) == 0 {
		return nil
	}
	got, err := f.ProjectFieldsForIssues(ctx, c.Org, c.Project, c.refs())
	if err != nil {
		return fmt.Errorf("fetch project fields for project %s/%d: %w", c.Org, c.Project, err)
	}
	for _, e := range c.issues {
		if fields, ok := got[e.Ref()]; ok {
			if err := e.AttachProjectFields(c.Project, fields); err != nil {
				return err
			}
		}
	}
	c.projectFieldsFetched = true
	return nil
}

// fetchComments bulk-fetches comments for every entity whose record was
// touched inside the timeframe. The tracker answering for an issue the
// collection does not hold is a consistency fault, not a skippable glitch.
func (c *Collection) fetchComments(ctx context.Context, f Fetcher, opts FetchOptions) error {
	if c.commentsFetched {
		return nil
	}
	byRef := make(map[domain.Ref]*Entity, len(c.issues))
	var want []domain.Ref
	for _, e := range c.issues {
		byRef[e.Ref()] = e
		if e.HasComments() || !opts.Timeframe.Contains(e.UpdatedAt()) {
			continue
		}
		want = append(want, e.Ref())
	}
	if len(want) > 0 {
		got, err := f.CommentsForIssues(ctx, want, opts.Comments)
		if err != nil {
			return fmt.Errorf("bulk fetch comments: %w", err)
		}
		for ref, cs := range got {
			e, ok := byRef[ref]
			if !ok {
				return fmt.Errorf("bulk comment fetch returned %s which is not in collection %q", ref, c.Title)
			}
			e.SetComments(cs)
		}
	}
	c.commentsFetched = true
	return nil
}

// Fetch enriches the whole collection: bulk project fields, bulk comments,
// the filter predicate, then the per-entity steps fanned out over a worker
// pool. Already-fetched layers are skipped, so Fetch is safe to repeat.
func (c *Collection) Fetch(ctx context.Context, f Fetcher, log zerolog.Logger, opts FetchOptions) error {
	if opts.ProjectFields && !c.projectFieldsFetched {
		if err := c.fetchProjectFields(ctx, f); err != nil {
			return err
		}
	}
	if opts.Comments > 0 {
		if err := c.fetchComments(ctx, f, opts); err != nil {
			return err
		}
	}
	if c.issueFieldsFetched {
		opts.IssueFields = false
	}
	if opts.Filter != nil {
		kept := c.issues[:0]
		for _, e := range c.issues {
			if opts.Filter(e) {
				kept = append(kept, e)
			}
		}
		c.issues = kept
	}
	if len(c.issues) == 0 {
		return nil
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(c.issues) {
		workers = len(c.issues)
	}

	jobs := make(chan *Entity)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				if err := e.Enrich(ctx, f, log, opts); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	for _, e := range c.issues {
		jobs <- e
	}
	close(jobs)
	wg.Wait()
	if firstErr == nil && opts.IssueFields {
		c.issueFieldsFetched = true
	}
	return firstErr
}

// Sort orders the collection in place by a field value and returns the
// receiver. Emoji-ranked values order by severity; everything else falls
// back to a locale-aware string compare. direction is "asc", "desc" or
// empty (ascending).
func (c *Collection) Sort(field, direction string) (*Collection, error) {
	var desc bool
	switch direction {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return nil, fmt.Errorf("invalid sort direction %q (want asc or desc)", direction)
	}
	col := collate.New(language.Und, collate.Loose)
	sort.SliceStable(c.issues, func(i, j int) bool {
		cmp := compareValues(col, c.issues[i].Field(field), c.issues[j].Field(field))
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return c, nil
}

// GroupBy partitions the collection into one sibling collection per distinct
// field value, ordered by the emoji-aware comparator. Entities with an empty
// value land in a trailing "No <Field>" group. The derived collections share
// entity pointers with the receiver.
func (c *Collection) GroupBy(field string) []*Collection {
	groups := make(map[string][]*Entity)
	var keys []string
	for _, e := range c.issues {
		k := e.Field(field)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], e)
	}
	col := collate.New(language.Und, collate.Loose)
	sort.SliceStable(keys, func(i, j int) bool {
		// Empty keys always sort last.
		if keys[i] == "" || keys[j] == "" {
			return keys[j] == ""
		}
		return compareValues(col, keys[i], keys[j]) < 0
	})
	caser := cases.Title(language.Und)
	out := make([]*Collection, 0, len(keys))
	for _, k := range keys {
		label := k
		if label == "" {
			label = "No " + caser.String(field)
		}
		out = append(out, &Collection{
			Title:      label,
			URL:        c.URL,
			GroupKey:   k,
			groupField: field,
			Org:        c.Org,
			Project:    c.Project,
			issues:     groups[k],

			commentsFetched:      c.commentsFetched,
			issueFieldsFetched:   c.issueFieldsFetched,
			projectFieldsFetched: c.projectFieldsFetched,
		})
	}
	return out
}

// Chart renders a mermaid pie chart of the field value distribution.
func (c *Collection) Chart(field string) string {
	var b strings.Builder
	b.WriteString("```mermaid\npie showData title " + c.Title + " by " + field + "\n")
	for _, g := range c.GroupBy(field) {
		b.WriteString(fmt.Sprintf("    %q : %d\n", g.Title, g.Len()))
	}
	b.WriteString("```\n")
	return b.String()
}

// Blame derives the collection of entities whose most recent update within
// tf is not attributed to any of the given authors and carries none of the
// marker strings. These are the issues whose rollup is stale.
func (c *Collection) Blame(authors, markers []string, tf Timeframe) *Collection {
	out := &Collection{
		Title:   c.Title + " (stale updates)",
		URL:     c.URL,
		Org:     c.Org,
		Project: c.Project,

		commentsFetched:      c.commentsFetched,
		issueFieldsFetched:   c.issueFieldsFetched,
		projectFieldsFetched: c.projectFieldsFetched,
	}
	for _, e := range c.issues {
		if !hasFreshRollup(e, authors, markers, tf) {
			out.issues = append(out.issues, e)
		}
	}
	return out
}

func hasFreshRollup(e *Entity, authors, markers []string, tf Timeframe) bool {
	latest := e.LatestUpdate(tf)
	if latest == nil {
		return false
	}
	for _, a := range authors {
		if strings.EqualFold(latest.Author, a) {
			return true
		}
	}
	for _, m := range markers {
		if m != "" && strings.Contains(latest.Body, m) {
			return true
		}
	}
	return false
}

// Copy returns a shallow copy that shares entity pointers but can be
// reordered or retitled independently.
func (c *Collection) Copy() *Collection {
	dup := *c
	dup.issues = make([]*Entity, len(c.issues))
	copy(dup.issues, c.issues)
	return &dup
}
