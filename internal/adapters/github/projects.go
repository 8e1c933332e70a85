package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/github/rollup-and-away/internal/domain"
)

type gqlIssue struct {
	Number     githubv4.Int
	Title      githubv4.String
	URL        githubv4.URI
	Body       githubv4.String
	Closed     githubv4.Boolean
	CreatedAt  githubv4.DateTime
	UpdatedAt  githubv4.DateTime
	Repository struct {
		Name  githubv4.String
		Owner struct {
			Login githubv4.String
		}
	}
	Assignees struct {
		Nodes []struct {
			Login githubv4.String
		}
	} `graphql:"assignees(first: 10)"`
	Labels struct {
		Nodes []struct {
			Name githubv4.String
		}
	} `graphql:"labels(first: 20)"`
	IssueType struct {
		Name githubv4.String
	}
	Parent struct {
		Title  githubv4.String
		URL    githubv4.URI
		Number githubv4.Int
	}
}

type gqlFieldValue struct {
	Typename     githubv4.String `graphql:"__typename"`
	SingleSelect struct {
		Name  githubv4.String
		Field struct {
			Select struct {
				Name    githubv4.String
				Options []struct {
					Name githubv4.String
				}
			} `graphql:"... on ProjectV2SingleSelectField"`
		}
	} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
	Text struct {
		Text  githubv4.String
		Field struct {
			Common struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldTextValue"`
	Number struct {
		Number githubv4.Float
		Field  struct {
			Common struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldNumberValue"`
	Date struct {
		Date  githubv4.String
		Field struct {
			Common struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldDateValue"`
	Iteration struct {
		Title githubv4.String
		Field struct {
			Common struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldIterationValue"`
}

func (v gqlFieldValue) toField() (domain.ProjectField, bool) {
	switch v.Typename {
	case "ProjectV2ItemFieldSingleSelectValue":
		f := domain.ProjectField{
			Name:  string(v.SingleSelect.Field.Select.Name),
			Value: string(v.SingleSelect.Name),
			Kind:  "single_select",
		}
		for _, o := range v.SingleSelect.Field.Select.Options {
			f.Options = append(f.Options, string(o.Name))
		}
		return f, f.Name != ""
	case "ProjectV2ItemFieldTextValue":
		f := domain.ProjectField{Name: string(v.Text.Field.Common.Name), Value: string(v.Text.Text), Kind: "text"}
		return f, f.Name != ""
	case "ProjectV2ItemFieldNumberValue":
		f := domain.ProjectField{
			Name:  string(v.Number.Field.Common.Name),
			Value: strconv.FormatFloat(float64(v.Number.Number), 'f', -1, 64),
			Kind:  "number",
		}
		return f, f.Name != ""
	case "ProjectV2ItemFieldDateValue":
		f := domain.ProjectField{Name: string(v.Date.Field.Common.Name), Value: string(v.Date.Date), Kind: "date"}
		return f, f.Name != ""
	case "ProjectV2ItemFieldIterationValue":
		f := domain.ProjectField{Name: string(v.Iteration.Field.Common.Name), Value: string(v.Iteration.Title), Kind: "iteration"}
		return f, f.Name != ""
	}
	return domain.ProjectField{}, false
}

func (is *gqlIssue) toRecord(project int, fields map[string]domain.ProjectField) domain.Record {
	rec := domain.Record{
		Org:       string(is.Repository.Owner.Login),
		Repo:      string(is.Repository.Name),
		Number:    int(is.Number),
		URL:       is.URL.String(),
		Title:     string(is.Title),
		Body:      string(is.Body),
		Closed:    bool(is.Closed),
		CreatedAt: is.CreatedAt.Time,
		UpdatedAt: is.UpdatedAt.Time,
		Type:      string(is.IssueType.Name),
		Project:   project,
		Fields:    fields,
	}
	for _, a := range is.Assignees.Nodes {
		rec.Assignees = append(rec.Assignees, string(a.Login))
	}
	for _, l := range is.Labels.Nodes {
		rec.Labels = append(rec.Labels, string(l.Name))
	}
	if is.Parent.Number > 0 {
		rec.Parent = &domain.ParentRef{
			Title:  string(is.Parent.Title),
			URL:    is.Parent.URL.String(),
			Number: int(is.Parent.Number),
		}
	}
	return rec
}

type projectItemsQuery struct {
	Organization struct {
		ProjectV2 struct {
			Title githubv4.String
			URL   githubv4.URI
			Items struct {
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
				Nodes []struct {
					FieldValues struct {
						Nodes []gqlFieldValue
					} `graphql:"fieldValues(first: 30)"`
					Content struct {
						Issue gqlIssue `graphql:"... on Issue"`
					}
				}
			} `graphql:"items(first: 100, after: $cursor)"`
		} `graphql:"projectV2(number: $project)"`
	} `graphql:"organization(login: $org)"`
}

// IssuesForProject lists the issues on a project board. Field values arrive
// with the item listing, so records come back with their fields populated.
func (c *Client) IssuesForProject(ctx context.Context, org string, project int) (domain.Batch, error) {
	b := domain.Batch{Org: org, Project: project}
	vars := map[string]any{
		"org":     githubv4.String(org),
		"project": githubv4.Int(int32(project)), //nolint:gosec // project numbers are small
		"cursor":  (*githubv4.String)(nil),
	}
	for {
		var q projectItemsQuery
		if err := c.gql.Query(ctx, &q, vars); err != nil {
			return domain.Batch{}, fmt.Errorf("query project %s/%d: %w", org, project, err)
		}
		p := q.Organization.ProjectV2
		b.Title = string(p.Title)
		b.URL = p.URL.String()
		for _, item := range p.Items.Nodes {
			if item.Content.Issue.Number == 0 {
				continue // draft items and pull requests
			}
			fields := map[string]domain.ProjectField{}
			for _, fv := range item.FieldValues.Nodes {
				if f, ok := fv.toField(); ok {
					fields[f.Name] = f
				}
			}
			b.Records = append(b.Records, item.Content.Issue.toRecord(project, fields))
		}
		if !p.Items.PageInfo.HasNextPage {
			break
		}
		vars["cursor"] = githubv4.NewString(p.Items.PageInfo.EndCursor)
	}
	return b, nil
}

type projectViewQuery struct {
	Organization struct {
		ProjectV2 struct {
			View struct {
				Name   githubv4.String
				Filter githubv4.String
			} `graphql:"view(number: $view)"`
		} `graphql:"projectV2(number: $project)"`
	} `graphql:"organization(login: $org)"`
}

// IssuesForView lists the project board filtered down to a saved view. The
// filter string travels back on the batch so the caller can apply it; field
// names the filter mentions are surfaced as FieldRefs.
func (c *Client) IssuesForView(ctx context.Context, org string, project, view int) (domain.Batch, error) {
	var vq projectViewQuery
	vars := map[string]any{
		"org":     githubv4.String(org),
		"project": githubv4.Int(int32(project)), //nolint:gosec // project numbers are small
		"view":    githubv4.Int(int32(view)),    //nolint:gosec // view numbers are small
	}
	if err := c.gql.Query(ctx, &vq, vars); err != nil {
		return domain.Batch{}, fmt.Errorf("query view %s/%d/%d: %w", org, project, view, err)
	}
	b, err := c.IssuesForProject(ctx, org, project)
	if err != nil {
		return domain.Batch{}, err
	}
	v := vq.Organization.ProjectV2.View
	if string(v.Name) != "" {
		b.Title = string(v.Name)
	}
	b.Filter = string(v.Filter)
	b.FieldRefs = filterFieldRefs(b.Filter)
	return b, nil
}

// filterFieldRefs pulls the field names out of a view filter string like
// `is:open status:"In Progress" -label:wontfix`.
func filterFieldRefs(filter string) []string {
	var refs []string
	for _, tok := range strings.Fields(filter) {
		tok = strings.TrimPrefix(tok, "-")
		field, _, ok := strings.Cut(tok, ":")
		if !ok || field == "" {
			continue
		}
		switch strings.ToLower(field) {
		case "is", "no", "reason":
			continue
		}
		refs = append(refs, field)
	}
	return refs
}

type issueFieldsQuery struct {
	Repository struct {
		Issue struct {
			ProjectItems struct {
				Nodes []struct {
					Project struct {
						Number githubv4.Int
					}
					FieldValues struct {
						Nodes []gqlFieldValue
					} `graphql:"fieldValues(first: 30)"`
				}
			} `graphql:"projectItems(first: 10)"`
		} `graphql:"issue(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

func (c *Client) projectFieldsForIssue(ctx context.Context, project int, ref domain.Ref) (map[string]domain.ProjectField, error) {
	var q issueFieldsQuery
	vars := map[string]any{
		"owner":  githubv4.String(ref.Org),
		"repo":   githubv4.String(ref.Repo),
		"number": githubv4.Int(int32(ref.Number)), //nolint:gosec // issue numbers are small
	}
	if err := c.gql.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("query project fields of %s: %w", ref, err)
	}
	for _, item := range q.Repository.Issue.ProjectItems.Nodes {
		if int(item.Project.Number) != project {
			continue
		}
		fields := map[string]domain.ProjectField{}
		for _, fv := range item.FieldValues.Nodes {
			if f, ok := fv.toField(); ok {
				fields[f.Name] = f
			}
		}
		return fields, nil
	}
	return nil, nil
}

// ProjectFieldsForIssues resolves per-issue field values for one project,
// fanned out over a bounded pool. Issues that are not on the project are
// simply absent from the result.
func (c *Client) ProjectFieldsForIssues(ctx context.Context, org string, project int, refs []domain.Ref) (map[domain.Ref]map[string]domain.ProjectField, error) {
	out := make(map[domain.Ref]map[string]domain.ProjectField, len(refs))
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	start := time.Now()
	for _, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func(ref domain.Ref) {
			defer wg.Done()
			defer func() { <-sem }()
			fields, err := c.projectFieldsForIssue(ctx, project, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if fields != nil {
				out[ref] = fields
			}
		}(ref)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	c.log.Debug().Int("issues", len(refs)).Int("resolved", len(out)).
		Dur("took", time.Since(start)).Msg("project field fan-out done")
	return out, nil
}
