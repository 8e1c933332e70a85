package issue

import (
	"context"
	"fmt"
	"time"

	"github.com/github/rollup-and-away/internal/domain"
	"github.com/rs/zerolog"
)

// fakeFetcher is an in-memory tracker with per-method call counters so tests
// can assert memoization.
type fakeFetcher struct {
	records  map[string]domain.Record // keyed by URL
	comments map[domain.Ref][]domain.Comment
	fields   map[domain.Ref]map[string]string
	project  map[domain.Ref]map[string]domain.ProjectField
	subs     map[domain.Ref][]domain.Record

	commentCalls     int
	bulkCommentCalls int
	fieldCalls       int
	projectCalls     int
	subCalls         int
	resolveCalls     int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records:  map[string]domain.Record{},
		comments: map[domain.Ref][]domain.Comment{},
		fields:   map[domain.Ref]map[string]string{},
		project:  map[domain.Ref]map[string]domain.ProjectField{},
		subs:     map[domain.Ref][]domain.Record{},
	}
}

func (f *fakeFetcher) IssuesForRepo(ctx context.Context, org, repo string) (domain.Batch, error) {
	b := domain.Batch{Title: org + "/" + repo, Org: org}
	for _, rec := range f.records {
		if rec.Org == org && rec.Repo == repo {
			b.Records = append(b.Records, rec)
		}
	}
	return b, nil
}

func (f *fakeFetcher) IssuesForProject(ctx context.Context, org string, project int) (domain.Batch, error) {
	return domain.Batch{}, fmt.Errorf("not implemented")
}

func (f *fakeFetcher) IssuesForView(ctx context.Context, org string, project, view int) (domain.Batch, error) {
	return domain.Batch{}, fmt.Errorf("not implemented")
}

func (f *fakeFetcher) SubIssues(ctx context.Context, parent domain.Ref) ([]domain.Record, error) {
	f.subCalls++
	return f.subs[parent], nil
}

func (f *fakeFetcher) CommentsForIssue(ctx context.Context, ref domain.Ref, limit int) ([]domain.Comment, error) {
	f.commentCalls++
	return f.comments[ref], nil
}

func (f *fakeFetcher) CommentsForIssues(ctx context.Context, refs []domain.Ref, limit int) (map[domain.Ref][]domain.Comment, error) {
	f.bulkCommentCalls++
	out := make(map[domain.Ref][]domain.Comment, len(refs))
	for _, r := range refs {
		out[r] = f.comments[r]
	}
	return out, nil
}

func (f *fakeFetcher) FieldsForIssue(ctx context.Context, ref domain.Ref) (map[string]string, error) {
	f.fieldCalls++
	return f.fields[ref], nil
}

func (f *fakeFetcher) ProjectFieldsForIssues(ctx context.Context, org string, project int, refs []domain.Ref) (map[domain.Ref]map[string]domain.ProjectField, error) {
	f.projectCalls++
	out := make(map[domain.Ref]map[string]domain.ProjectField, len(refs))
	for _, r := range refs {
		if pf, ok := f.project[r]; ok {
			out[r] = pf
		}
	}
	return out, nil
}

func (f *fakeFetcher) ResolveIssueURL(ctx context.Context, url string) (domain.Record, error) {
	f.resolveCalls++
	rec, ok := f.records[url]
	if !ok {
		return domain.Record{}, fmt.Errorf("no issue at %s", url)
	}
	return rec, nil
}

func testRecord(org, repo string, number int, title string) domain.Record {
	return domain.Record{
		Org:       org,
		Repo:      repo,
		Number:    number,
		URL:       fmt.Sprintf("https://github.com/%s/%s/issues/%d", org, repo, number),
		Title:     title,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
