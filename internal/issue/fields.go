package issue

import (
	"strconv"
	"strings"
)

// normKey lowercases a field name and strips all whitespace, so that
// "Full Name", "fullName" and "fullname" resolve identically.
func normKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '\t', '\n', '\r', '_', '-':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Field resolves a named field against the entity. Built-in attributes win,
// then per-issue custom fields, then project fields. Unknown names resolve
// to the empty string rather than an error.
func (e *Entity) Field(name string) string {
	switch normKey(name) {
	case "title":
		return e.rec.Title
	case "url", "link":
		return e.rec.URL
	case "number":
		return strconv.Itoa(e.rec.Number)
	case "body", "description":
		return e.rec.Body
	case "type", "issuetype":
		return e.rec.Type
	case "repo", "repository":
		return e.rec.Repo
	case "org", "organization", "owner":
		return e.rec.Org
	case "fullname", "repofullname", "namewithowner":
		return e.rec.Org + "/" + e.rec.Repo
	case "state":
		if e.rec.Closed {
			return "closed"
		}
		return "open"
	case "assignee":
		if len(e.rec.Assignees) > 0 {
			return e.rec.Assignees[0]
		}
		return ""
	case "assignees":
		return strings.Join(e.rec.Assignees, ", ")
	case "labels":
		return strings.Join(e.rec.Labels, ", ")
	case "parent", "parenttitle":
		if e.rec.Parent != nil {
			return e.rec.Parent.Title
		}
		return ""
	case "parenturl":
		if e.rec.Parent != nil {
			return e.rec.Parent.URL
		}
		return ""
	case "createdat", "created":
		return e.rec.CreatedAt.Format("2006-01-02")
	case "updatedat", "updated":
		return e.rec.UpdatedAt.Format("2006-01-02")
	}
	if e.issueFields != nil {
		for k, v := range e.issueFields {
			if normKey(k) == normKey(name) {
				return v
			}
		}
	}
	if e.projectFields != nil {
		for k, f := range e.projectFields {
			if normKey(k) == normKey(name) {
				return f.Value
			}
		}
	}
	return ""
}

// StatusConfig controls how Status derives a value from recent updates.
type StatusConfig struct {
	// EmojiOverride lets an emoji in the latest update override the
	// tracker-side field value.
	EmojiOverride bool
	// Sections restricts the emoji scan to the named markdown headings of
	// the update body. Empty means scan the whole body.
	Sections []string
}

// Status resolves the status field, optionally overridden by an emoji found
// in the entity's most recent update. When the underlying field is a
// single-select, the emoji maps to the first option containing it; otherwise
// the raw emoji is used. Entities with no resolvable status report
// "No Status".
func (e *Entity) Status(field string, cfg StatusConfig) string {
	if cfg.EmojiOverride {
		if s := e.statusFromEmoji(field, cfg.Sections); s != "" {
			return s
		}
	}
	if v := e.Field(field); v != "" {
		return v
	}
	return "No Status"
}

func (e *Entity) statusFromEmoji(field string, sections []string) string {
	us := e.Updates()
	if len(us) == 0 {
		return ""
	}
	body := us[0].Body
	if len(sections) > 0 {
		body = markdownSections(body, sections)
	}
	r, ok := firstEmoji(body)
	if !ok {
		return ""
	}
	em := string(r)
	if e.projectFields != nil {
		for k, f := range e.projectFields {
			if normKey(k) != normKey(field) || !f.SingleSelect() {
				continue
			}
			for _, opt := range f.Options {
				if strings.Contains(opt, em) {
					return opt
				}
			}
		}
	}
	return em
}

// markdownSections concatenates the bodies of the named "#"-headed sections
// of text. Heading matching is case-insensitive on the normalized name.
func markdownSections(text string, names []string) string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[normKey(n)] = true
	}
	var b strings.Builder
	keep := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.TrimLeft(trimmed, "#")
			keep = want[normKey(heading)]
			continue
		}
		if keep {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
