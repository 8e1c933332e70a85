package github

import "testing"

func TestSplitIssueURL(t *testing.T) {
	org, repo, n, err := splitIssueURL("https://github.com/acme/api-server/issues/42")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if org != "acme" || repo != "api-server" || n != 42 {
		t.Fatalf("got %s/%s#%d", org, repo, n)
	}
	if _, _, _, err := splitIssueURL("https://github.com/acme/api/pull/7"); err == nil {
		t.Fatal("pull request url must not parse as an issue")
	}
	if _, _, _, err := splitIssueURL("not a url"); err == nil {
		t.Fatal("garbage must not parse")
	}
}

func TestFieldLineRegex(t *testing.T) {
	body := "intro text\n**Priority:** High\nplain line\n**Target Date:** 2026-09-15\n"
	got := map[string]string{}
	for _, m := range fieldLineRegex.FindAllStringSubmatch(body, -1) {
		got[m[1]] = m[2]
	}
	if got["Priority"] != "High" || got["Target Date"] != "2026-09-15" {
		t.Fatalf("fields = %v", got)
	}
}

func TestFilterFieldRefs(t *testing.T) {
	refs := filterFieldRefs(`is:open status:"In Progress" -label:wontfix no:assignee`)
	want := []string{"status", "label"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("ref %d = %q, want %q", i, refs[i], want[i])
		}
	}
}
