package issue

import (
	"testing"
	"time"
)

func TestParseFetchOptionsRejectsUnknownKey(t *testing.T) {
	_, err := ParseFetchOptions(map[string]any{"coments": 3})
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParseFetchOptionsDefaults(t *testing.T) {
	opts, err := ParseFetchOptions(map[string]any{"comments": 5, "subissues": true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Comments != 5 || !opts.SubIssues || opts.FollowLinks {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.Timeframe != TimeframeAll {
		t.Fatalf("timeframe = %q, want all-time", opts.Timeframe)
	}
}

func TestParseRenderOptionsRejectsUnknownKey(t *testing.T) {
	_, err := ParseRenderOptions(map[string]any{"headers": true})
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParseRenderOptionsFieldAccumulates(t *testing.T) {
	opts, err := ParseRenderOptions(map[string]any{
		"field":  "Status",
		"fields": []string{"Priority", "Milestone"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.Fields) != 3 {
		t.Fatalf("fields = %v", opts.Fields)
	}
}

func TestParseTimeframe(t *testing.T) {
	if tf, err := ParseTimeframe(""); err != nil || tf != TimeframeAll {
		t.Fatalf("empty timeframe: %v %q", err, tf)
	}
	if _, err := ParseTimeframe("fortnight"); err == nil {
		t.Fatal("expected error for unknown timeframe")
	}
}

func TestTimeframeContains(t *testing.T) {
	old := time.Now().Add(-40 * 24 * time.Hour)
	if TimeframeLastMonth.Contains(old) {
		t.Fatal("40 days ago is not within last-month")
	}
	if !TimeframeLastYear.Contains(old) {
		t.Fatal("40 days ago is within last-year")
	}
	if !TimeframeAll.Contains(old) {
		t.Fatal("all-time contains everything")
	}
}
