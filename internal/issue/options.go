package issue

import (
	"fmt"
	"time"
)

// Timeframe bounds which updates count as recent. Unknown values are a
// configuration error.
type Timeframe string

const (
	TimeframeAll       Timeframe = "all-time"
	TimeframeToday     Timeframe = "today"
	TimeframeLastWeek  Timeframe = "last-week"
	TimeframeLastMonth Timeframe = "last-month"
	TimeframeLastYear  Timeframe = "last-year"
)

func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeAll, TimeframeToday, TimeframeLastWeek, TimeframeLastMonth, TimeframeLastYear:
		return Timeframe(s), nil
	case "":
		return TimeframeAll, nil
	}
	return "", fmt.Errorf("invalid timeframe %q (want all-time|today|last-week|last-month|last-year)", s)
}

// Contains reports whether t falls inside the timeframe, measured back from now.
func (tf Timeframe) Contains(t time.Time) bool {
	now := time.Now()
	switch tf {
	case TimeframeToday:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return !t.Before(midnight)
	case TimeframeLastWeek:
		return t.After(now.Add(-7 * 24 * time.Hour))
	case TimeframeLastMonth:
		return t.After(now.Add(-30 * 24 * time.Hour))
	case TimeframeLastYear:
		return t.After(now.Add(-365 * 24 * time.Hour))
	}
	return true
}

// FetchOptions configures enrichment. Timeframe is config-level and not part
// of the strict key set accepted by ParseFetchOptions.
type FetchOptions struct {
	Comments      int
	ProjectFields bool
	IssueFields   bool
	SubIssues     bool
	FollowLinks   bool
	Filter        func(*Entity) bool
	Timeframe     Timeframe
	// Concurrency bounds the per-entity enrichment fan-out. Zero means a
	// small default. Config-level, like Timeframe.
	Concurrency int
}

// ParseFetchOptions builds FetchOptions from a flat map, rejecting unknown keys.
func ParseFetchOptions(m map[string]any) (FetchOptions, error) {
	var opts FetchOptions
	for k, v := range m {
		switch k {
		case "comments":
			n, err := asInt(v)
			if err != nil { return opts, fmt.Errorf("fetch option %q: %w", k, err) }
			opts.Comments = n
		case "projectFields":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("fetch option %q: %w", k, err) }
			opts.ProjectFields = b
		case "issueFields":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("fetch option %q: %w", k, err) }
			opts.IssueFields = b
		case "subissues":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("fetch option %q: %w", k, err) }
			opts.SubIssues = b
		case "followLinks":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("fetch option %q: %w", k, err) }
			opts.FollowLinks = b
		case "filter":
			fn, ok := v.(func(*Entity) bool)
			if !ok { return opts, fmt.Errorf("fetch option %q: want func(*Entity) bool, got %T", k, v) }
			opts.Filter = fn
		default:
			return opts, fmt.Errorf("unknown fetch option %q", k)
		}
	}
	if opts.Timeframe == "" { opts.Timeframe = TimeframeAll }
	return opts, nil
}

// RenderOptions configures the rendering pipeline. SubIssues and
// RelatedIssues are tri-state: nil means "render if the entity has them".
type RenderOptions struct {
	Header        bool
	Body          bool
	Updates       int
	Author        bool
	CreatedAt     bool
	UpdatedAt     bool
	Fields        []string
	SubIssues     *bool
	RelatedIssues *bool
	SkipIfEmpty   bool
}

// ParseRenderOptions builds RenderOptions from a flat map, rejecting unknown keys.
func ParseRenderOptions(m map[string]any) (RenderOptions, error) {
	var opts RenderOptions
	for k, v := range m {
		switch k {
		case "header":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.Header = b
		case "body":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.Body = b
		case "updates":
			n, err := asInt(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.Updates = n
		case "author":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.Author = b
		case "createdAt":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.CreatedAt = b
		case "updatedAt":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.UpdatedAt = b
		case "field":
			s, ok := v.(string)
			if !ok { return opts, fmt.Errorf("render option %q: want string, got %T", k, v) }
			opts.Fields = append(opts.Fields, s)
		case "fields":
			ss, err := asStrings(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.Fields = append(opts.Fields, ss...)
		case "subissues":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.SubIssues = &b
		case "relatedIssues":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.RelatedIssues = &b
		case "skipIfEmpty":
			b, err := asBool(v)
			if err != nil { return opts, fmt.Errorf("render option %q: %w", k, err) }
			opts.SkipIfEmpty = b
		default:
			return opts, fmt.Errorf("unknown render option %q", k)
		}
	}
	return opts, nil
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok { return false, fmt.Errorf("want bool, got %T", v) }
	return b, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("want int, got %T", v)
}

func asStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, it := range s {
			str, ok := it.(string)
			if !ok { return nil, fmt.Errorf("want string element, got %T", it) }
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("want []string, got %T", v)
}
