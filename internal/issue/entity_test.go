package issue

import (
	"context"
	"testing"
	"time"

	"github.com/github/rollup-and-away/internal/domain"
)

func TestAttachProjectFieldsRejectsSecondProject(t *testing.T) {
	e := NewEntity(testRecord("acme", "api", 1, "one"))
	if err := e.AttachProjectFields(1, map[string]domain.ProjectField{}); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if err := e.AttachProjectFields(2, map[string]domain.ProjectField{}); err == nil {
		t.Fatal("expected error attaching a second project")
	}
	// Re-attaching the same project refreshes the fields without complaint.
	if err := e.AttachProjectFields(1, map[string]domain.ProjectField{"Status": {Name: "Status", Value: "Done"}}); err != nil {
		t.Fatalf("re-attach same project: %v", err)
	}
	if e.Field("Status") != "Done" {
		t.Fatalf("Status = %q, want Done", e.Field("Status"))
	}
}

func TestEnrichMemoizesEachLayer(t *testing.T) {
	f := newFakeFetcher()
	rec := testRecord("acme", "api", 1, "one")
	f.comments[rec.Ref()] = []domain.Comment{{Author: "dev", Body: "note", CreatedAt: time.Now()}}
	f.fields[rec.Ref()] = map[string]string{"Priority": "High"}

	e := NewEntity(rec)
	opts := FetchOptions{Comments: 3, IssueFields: true, Timeframe: TimeframeAll}
	for i := 0; i < 3; i++ {
		if err := e.Enrich(context.Background(), f, testLogger(), opts); err != nil {
			t.Fatalf("enrich %d: %v", i, err)
		}
	}
	if f.commentCalls != 1 {
		t.Fatalf("comment fetch ran %d times, want 1", f.commentCalls)
	}
	if f.fieldCalls != 1 {
		t.Fatalf("field fetch ran %d times, want 1", f.fieldCalls)
	}
	if e.Field("priority") != "High" {
		t.Fatalf("priority = %q, want High", e.Field("priority"))
	}
}

func TestEnrichSubIssuesAlwaysAttachesCollection(t *testing.T) {
	f := newFakeFetcher()
	parent := testRecord("acme", "api", 1, "epic")
	child := testRecord("acme", "api", 2, "task")
	f.subs[parent.Ref()] = []domain.Record{child}

	e := NewEntity(parent)
	opts := FetchOptions{SubIssues: true, Timeframe: TimeframeAll}
	if err := e.Enrich(context.Background(), f, testLogger(), opts); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if e.Sub == nil {
		t.Fatal("sub-issue collection missing")
	}
	if e.Sub.Len() != 1 || !e.Sub.Issues()[0].IsSubIssue() {
		t.Fatalf("sub collection has %d entities", e.Sub.Len())
	}

	// An entity with no sub-issues still gets an (empty) collection.
	leaf := NewEntity(testRecord("acme", "api", 3, "leaf"))
	if err := leaf.Enrich(context.Background(), f, testLogger(), opts); err != nil {
		t.Fatalf("enrich leaf: %v", err)
	}
	if leaf.Sub == nil || leaf.Sub.Len() != 0 {
		t.Fatal("leaf must carry an empty sub-issue collection")
	}
}

func TestFollowLinksLeavesRelatedAbsentWithoutReferences(t *testing.T) {
	f := newFakeFetcher()
	rec := testRecord("acme", "api", 1, "one")
	f.comments[rec.Ref()] = []domain.Comment{{Author: "dev", Body: "plain text, no links", CreatedAt: time.Now()}}

	e := NewEntity(rec)
	opts := FetchOptions{Comments: 3, FollowLinks: true, Timeframe: TimeframeAll}
	if err := e.Enrich(context.Background(), f, testLogger(), opts); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if e.Related != nil {
		t.Fatal("related collection must stay absent when no update references issues")
	}
}

func TestFollowLinksResolvesReferencedIssues(t *testing.T) {
	f := newFakeFetcher()
	rec := testRecord("acme", "api", 1, "one")
	other := testRecord("acme", "web", 9, "nine")
	f.records[other.URL] = other
	f.comments[rec.Ref()] = []domain.Comment{{
		Author:    "dev",
		Body:      "blocked on " + other.URL + " and a dead link https://github.com/acme/gone/issues/404",
		CreatedAt: time.Now(),
	}}

	e := NewEntity(rec)
	opts := FetchOptions{Comments: 3, FollowLinks: true, Timeframe: TimeframeAll}
	if err := e.Enrich(context.Background(), f, testLogger(), opts); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if e.Related == nil {
		t.Fatal("related collection missing")
	}
	if e.Related.Len() != 1 || e.Related.Issues()[0].Title() != "nine" {
		t.Fatalf("related has %d entities", e.Related.Len())
	}
}

func TestFollowLinksEnrichesRelatedSubIssues(t *testing.T) {
	f := newFakeFetcher()
	rec := testRecord("acme", "api", 1, "one")
	other := testRecord("acme", "web", 9, "nine")
	child := testRecord("acme", "web", 10, "ten")
	f.records[other.URL] = other
	f.subs[other.Ref()] = []domain.Record{child}
	f.comments[rec.Ref()] = []domain.Comment{{
		Author:    "dev",
		Body:      "blocked on " + other.URL,
		CreatedAt: time.Now(),
	}}

	e := NewEntity(rec)
	opts := FetchOptions{Comments: 3, FollowLinks: true, SubIssues: true, Timeframe: TimeframeAll}
	if err := e.Enrich(context.Background(), f, testLogger(), opts); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	rel := e.Related.Issues()[0]
	if rel.Sub == nil || rel.Sub.Len() != 1 || rel.Sub.Issues()[0].Title() != "ten" {
		t.Fatal("related entity missing its sub-issue collection")
	}
	// Only link-following is suppressed on the derived collection.
	if rel.Related != nil {
		t.Fatal("related entities must not follow links themselves")
	}
}

func TestUpdatesOrderNewestFirst(t *testing.T) {
	e := NewEntity(testRecord("acme", "api", 1, "one"))
	old := domain.Comment{Body: "old", CreatedAt: time.Now().Add(-48 * time.Hour)}
	mid := domain.Comment{Body: "mid", CreatedAt: time.Now().Add(-24 * time.Hour)}
	recent := domain.Comment{Body: "new", CreatedAt: time.Now().Add(-time.Hour)}
	e.SetComments([]domain.Comment{old, recent, mid})

	us := e.Updates()
	if us[0].Body != "new" || us[1].Body != "mid" || us[2].Body != "old" {
		t.Fatalf("updates out of order: %s %s %s", us[0].Body, us[1].Body, us[2].Body)
	}
	if got := e.LatestUpdate(TimeframeLastWeek); got == nil || got.Body != "new" {
		t.Fatalf("latest update = %+v", got)
	}
	if got := e.LatestUpdate(TimeframeAll); got == nil || got.Body != "new" {
		t.Fatalf("latest all-time update = %+v", got)
	}
}

func TestStatusEmojiOverride(t *testing.T) {
	e := NewEntity(testRecord("acme", "api", 1, "one"))
	if err := e.AttachProjectFields(1, map[string]domain.ProjectField{
		"Status": {
			Name:    "Status",
			Value:   "🟢 On Track",
			Kind:    "single_select",
			Options: []string{"🔴 Off Track", "🟡 At Risk", "🟢 On Track"},
		},
	}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	e.SetComments([]domain.Comment{{Body: "🔴 vendor slipped the date", CreatedAt: time.Now()}})

	got := e.Status("Status", StatusConfig{EmojiOverride: true})
	if got != "🔴 Off Track" {
		t.Fatalf("status = %q, want the matching single-select option", got)
	}
	// Without override the tracker-side value wins.
	if got := e.Status("Status", StatusConfig{}); got != "🟢 On Track" {
		t.Fatalf("status without override = %q", got)
	}
}

func TestStatusSectionsRestrictEmojiScan(t *testing.T) {
	e := NewEntity(testRecord("acme", "api", 1, "one"))
	e.SetComments([]domain.Comment{{
		Body:      "## Highlights\n🎉 shipped the beta\n## Status\n🟡 waiting on review\n",
		CreatedAt: time.Now(),
	}})
	cfg := StatusConfig{EmojiOverride: true, Sections: []string{"Status"}}
	if got := e.Status("Status", cfg); got != "🟡" {
		t.Fatalf("status = %q, want 🟡", got)
	}
}

func TestStatusFallsBackToNoStatus(t *testing.T) {
	e := NewEntity(testRecord("acme", "api", 1, "one"))
	if got := e.Status("Status", StatusConfig{EmojiOverride: true}); got != "No Status" {
		t.Fatalf("status = %q, want No Status", got)
	}
}

func TestFieldResolvesBuiltinsAndAliases(t *testing.T) {
	rec := testRecord("acme", "api", 7, "seven")
	rec.Assignees = []string{"alice", "bob"}
	e := NewEntity(rec)
	cases := []struct{ name, want string }{
		{"title", "seven"},
		{"Number", "7"},
		{"repo", "api"},
		{"Repository", "api"},
		{"org", "acme"},
		{"Full Name", "acme/api"},
		{"state", "open"},
		{"assignee", "alice"},
		{"assignees", "alice, bob"},
		{"nonsense", ""},
	}
	for _, tc := range cases {
		if got := e.Field(tc.name); got != tc.want {
			t.Fatalf("Field(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractIssueURLsDedupes(t *testing.T) {
	body := "see https://github.com/acme/api/issues/1 and https://github.com/acme/api/issues/2, " +
		"again https://github.com/acme/api/issues/1, but not https://github.com/acme/api/pull/3"
	got := ExtractIssueURLs(body)
	want := []string{
		"https://github.com/acme/api/issues/1",
		"https://github.com/acme/api/issues/2",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d urls: %v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("url %d = %q, want %q", i, got[i], want[i])
		}
	}
}
