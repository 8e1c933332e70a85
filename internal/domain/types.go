package domain

import (
	"fmt"
	"time"
)

// Ref identifies an issue by its immutable coordinates.
type Ref struct {
	Org    string
	Repo   string
	Number int
}

func (r Ref) String() string { return fmt.Sprintf("%s/%s#%d", r.Org, r.Repo, r.Number) }

// ParentRef is a lightweight pointer to a parent issue.
type ParentRef struct {
	Title  string
	URL    string
	Number int
}

// Record is one raw issue as returned by the tracker.
type Record struct {
	Org       string
	Repo      string
	Number    int
	URL       string
	Title     string
	Body      string
	Closed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Assignees []string
	Labels    []string
	Type      string
	Parent    *ParentRef
	Project   int                     // project number the record was fetched through, 0 if none
	Fields    map[string]ProjectField // project field values delivered with the record, if any
}

func (rec Record) Ref() Ref { return Ref{Org: rec.Org, Repo: rec.Repo, Number: rec.Number} }

// Comment is one issue comment ("update").
type Comment struct {
	Author    string
	Body      string
	URL       string
	CreatedAt time.Time
}

// ProjectField is a per-issue project field value plus enough of the field
// definition to tell single-selects apart from free text.
type ProjectField struct {
	Name    string
	Value   string
	Kind    string // "single_select", "text", "number", "date", "iteration"
	Options []string
}

// SingleSelect reports whether the field carries a fixed option set.
func (f ProjectField) SingleSelect() bool { return f.Kind == "single_select" && len(f.Options) > 0 }

// Batch is the result of a tracker list call: raw records plus the source of
// truth they came from.
type Batch struct {
	Records []Record
	Title   string
	URL     string
	Org     string
	Project int    // set when the batch is tied to a project
	Filter  string // set when the batch came from a project view
	// FieldRefs lists the custom fields a view's filter mentions; a
	// non-empty list forces a project-fields fetch before the filter can
	// run.
	FieldRefs []string
}
