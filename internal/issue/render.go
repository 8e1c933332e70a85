package issue

import (
	"fmt"
	"strings"

	"github.com/github/rollup-and-away/internal/domain"
)

// Fragment is a rendered piece of markdown plus the provenance of everything
// that went into it, own URL first and nested sources in render order.
type Fragment struct {
	Markdown string
	Sources  []string
}

func heading(depth int) string {
	if depth < 0 {
		depth = 0
	}
	if depth > 5 {
		depth = 5
	}
	return strings.Repeat("#", depth+1)
}

// Render produces the markdown fragment for one entity at the given nesting
// depth. Empty entities are suppressed entirely with SkipIfEmpty or when the
// header is off; otherwise a placeholder line keeps the entity visible.
func (e *Entity) Render(opts RenderOptions, depth int) *Fragment {
	subs := e.renderSub(opts, depth)
	related := e.renderRelated(opts, depth)
	updates := e.Updates()
	if opts.Updates > 0 && len(updates) > opts.Updates {
		updates = updates[:opts.Updates]
	}
	if opts.Updates == 0 {
		updates = nil
	}

	hasContent := len(updates) > 0 ||
		(opts.Body && strings.TrimSpace(e.Body()) != "") ||
		len(subs) > 0 || len(related) > 0
	if !hasContent {
		if opts.SkipIfEmpty || !opts.Header {
			return nil
		}
		return &Fragment{
			Markdown: fmt.Sprintf("%s [%s](%s)\n\nNo recent updates.\n", heading(depth), e.Title(), e.URL()),
			Sources:  []string{e.URL()},
		}
	}

	var b strings.Builder
	sources := []string{e.URL()}

	if opts.Header {
		fmt.Fprintf(&b, "%s [%s](%s)\n\n", heading(depth), e.Title(), e.URL())
	}
	if opts.CreatedAt {
		fmt.Fprintf(&b, "**Created:** %s\n", e.CreatedAt().Format("2006-01-02"))
	}
	if opts.UpdatedAt {
		fmt.Fprintf(&b, "**Updated:** %s\n", e.UpdatedAt().Format("2006-01-02"))
	}
	for _, f := range opts.Fields {
		if v := e.Field(f); v != "" {
			fmt.Fprintf(&b, "**%s:** %s\n", f, v)
		}
	}
	if opts.CreatedAt || opts.UpdatedAt || len(opts.Fields) > 0 {
		b.WriteString("\n")
	}
	if opts.Body && strings.TrimSpace(e.Body()) != "" {
		b.WriteString(strings.TrimSpace(e.Body()))
		b.WriteString("\n\n")
	}
	for _, u := range updates {
		uf := renderComment(u, opts)
		b.WriteString(uf.Markdown)
		sources = append(sources, uf.Sources...)
	}
	for _, sf := range subs {
		b.WriteString(sf.Markdown)
		sources = append(sources, sf.Sources...)
	}
	if len(subs) > 0 {
		b.WriteString("---\n\n")
	}
	for _, rf := range related {
		b.WriteString(rf.Markdown)
		sources = append(sources, rf.Sources...)
	}
	if len(related) > 0 {
		b.WriteString("---\n\n")
	}
	return &Fragment{Markdown: b.String(), Sources: sources}
}

// renderSub decides whether sub-issues render (explicit option wins, default
// is "render if attached") and collects the child fragments.
func (e *Entity) renderSub(opts RenderOptions, depth int) []*Fragment {
	want := e.Sub != nil
	if opts.SubIssues != nil {
		want = *opts.SubIssues && e.Sub != nil
	}
	if !want {
		return nil
	}
	// Children without renderable content stay silent; a placeholder here
	// would make every parent look non-empty.
	child := opts
	child.SkipIfEmpty = true
	return renderEntities(e.Sub.Issues(), child, depth+1)
}

func (e *Entity) renderRelated(opts RenderOptions, depth int) []*Fragment {
	want := e.Related != nil
	if opts.RelatedIssues != nil {
		want = *opts.RelatedIssues && e.Related != nil
	}
	if !want {
		return nil
	}
	child := opts
	child.SkipIfEmpty = true
	return renderEntities(e.Related.Issues(), child, depth+1)
}

func renderEntities(es []*Entity, opts RenderOptions, depth int) []*Fragment {
	var out []*Fragment
	for _, e := range es {
		if f := e.Render(opts, depth); f != nil {
			out = append(out, f)
		}
	}
	return out
}

// renderComment renders one update. The source is the comment's own URL when
// it has one, otherwise the body stands in as the provenance literal.
func renderComment(u domain.Comment, opts RenderOptions) *Fragment {
	var b strings.Builder
	if opts.Author && u.Author != "" {
		fmt.Fprintf(&b, "**%s** on %s:\n\n", u.Author, u.CreatedAt.Format("2006-01-02"))
	}
	b.WriteString(strings.TrimSpace(u.Body))
	b.WriteString("\n\n")
	src := u.URL
	if src == "" {
		src = u.Body
	}
	return &Fragment{Markdown: b.String(), Sources: []string{src}}
}

// Render produces the fragment for a whole collection: its own header
// followed by each entity fragment at the next depth. A collection whose
// entities all suppressed themselves still renders its header with a
// placeholder, so the rollup shows the section exists.
func (c *Collection) Render(opts RenderOptions, depth int) *Fragment {
	var b strings.Builder
	var sources []string

	if c.URL != "" {
		fmt.Fprintf(&b, "%s [%s](%s)\n\n", heading(depth), c.Title, c.URL)
		sources = append(sources, c.URL)
	} else {
		fmt.Fprintf(&b, "%s %s\n\n", heading(depth), c.Title)
	}

	child := opts
	child.Header = true
	frags := renderEntities(c.issues, child, depth+1)
	if len(frags) == 0 {
		b.WriteString("No recent updates.\n")
		return &Fragment{Markdown: b.String(), Sources: sources}
	}
	for _, f := range frags {
		b.WriteString(f.Markdown)
		sources = append(sources, f.Sources...)
	}
	return &Fragment{Markdown: b.String(), Sources: sources}
}
