package github

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v79/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/github/rollup-and-away/internal/domain"
)

// Client talks to GitHub over both REST and GraphQL. Listing and comments go
// through REST; projects, views and sub-issue parents need GraphQL.
type Client struct {
	rest    *gh.Client
	gql     *githubv4.Client
	log     zerolog.Logger
	workers int
}

type Options struct {
	Token       string
	BaseURL     string // empty for github.com, else the GHES root
	Timeout     time.Duration
	Concurrency int
}

func New(log zerolog.Logger, o Options) (*Client, error) {
	if o.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.Token})
	hc := oauth2.NewClient(context.Background(), src)
	if o.Timeout > 0 {
		hc.Timeout = o.Timeout
	}

	rest := gh.NewClient(hc)
	var gql *githubv4.Client
	if o.BaseURL != "" {
		var err error
		rest, err = rest.WithEnterpriseURLs(o.BaseURL, o.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github: enterprise base url: %w", err)
		}
		gql = githubv4.NewEnterpriseClient(strings.TrimSuffix(o.BaseURL, "/")+"/api/graphql", hc)
	} else {
		gql = githubv4.NewClient(hc)
	}

	workers := o.Concurrency
	if workers <= 0 {
		workers = 4
	}
	return &Client{rest: rest, gql: gql, log: log, workers: workers}, nil
}

func issueToRecord(org string, is *gh.Issue) domain.Record {
	rec := domain.Record{
		Org:    org,
		Number: is.GetNumber(),
		URL:    is.GetHTMLURL(),
		Title:  is.GetTitle(),
		Body:   is.GetBody(),
		Closed: is.GetState() == "closed",
	}
	if r := is.GetRepository(); r != nil {
		rec.Repo = r.GetName()
		if own := r.GetOwner(); own != nil && own.GetLogin() != "" {
			rec.Org = own.GetLogin()
		}
	} else if rec.URL != "" {
		// ListByRepo omits the repository block; recover it from the URL.
		if o, r, _, err := splitIssueURL(rec.URL); err == nil {
			rec.Org, rec.Repo = o, r
		}
	}
	rec.CreatedAt = is.GetCreatedAt().Time
	rec.UpdatedAt = is.GetUpdatedAt().Time
	for _, a := range is.Assignees {
		rec.Assignees = append(rec.Assignees, a.GetLogin())
	}
	for _, l := range is.Labels {
		rec.Labels = append(rec.Labels, l.GetName())
	}
	if t := is.Type; t != nil {
		rec.Type = t.GetName()
	}
	return rec
}

// IssuesForRepo lists the open issues of one repository, pull requests
// excluded.
func (c *Client) IssuesForRepo(ctx context.Context, org, repo string) (domain.Batch, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	b := domain.Batch{
		Title: org + "/" + repo,
		URL:   fmt.Sprintf("https://github.com/%s/%s/issues", org, repo),
		Org:   org,
	}
	for {
		issues, resp, err := c.rest.Issues.ListByRepo(ctx, org, repo, opts)
		if err != nil {
			return domain.Batch{}, fmt.Errorf("list issues %s/%s: %w", org, repo, err)
		}
		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			rec := issueToRecord(org, is)
			rec.Repo = repo
			b.Records = append(b.Records, rec)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return b, nil
}

// SubIssues lists the direct sub-issues of a parent issue.
func (c *Client) SubIssues(ctx context.Context, parent domain.Ref) ([]domain.Record, error) {
	opts := &gh.IssueListOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var out []domain.Record
	for {
		subs, resp, err := c.rest.SubIssue.ListByIssue(ctx, parent.Org, parent.Repo, int64(parent.Number), opts)
		if err != nil {
			return nil, fmt.Errorf("list sub-issues of %s: %w", parent, err)
		}
		for _, is := range subs {
			out = append(out, issueToRecord(parent.Org, (*gh.Issue)(is)))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

// CommentsForIssue returns up to limit comments, newest first.
func (c *Client) CommentsForIssue(ctx context.Context, ref domain.Ref, limit int) ([]domain.Comment, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.Ptr("created"),
		Direction:   gh.Ptr("desc"),
		ListOptions: gh.ListOptions{PerPage: limit},
	}
	comments, _, err := c.rest.Issues.ListComments(ctx, ref.Org, ref.Repo, ref.Number, opts)
	if err != nil {
		return nil, fmt.Errorf("list comments of %s: %w", ref, err)
	}
	out := make([]domain.Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, domain.Comment{
			Author:    cm.GetUser().GetLogin(),
			Body:      cm.GetBody(),
			URL:       cm.GetHTMLURL(),
			CreatedAt: cm.GetCreatedAt().Time,
		})
	}
	return out, nil
}

// CommentsForIssues fans the per-issue comment fetch out over a bounded pool.
func (c *Client) CommentsForIssues(ctx context.Context, refs []domain.Ref, limit int) (map[domain.Ref][]domain.Comment, error) {
	out := make(map[domain.Ref][]domain.Comment, len(refs))
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func(ref domain.Ref) {
			defer wg.Done()
			defer func() { <-sem }()
			cs, err := c.CommentsForIssue(ctx, ref, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[ref] = cs
		}(ref)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

var fieldLineRegex = regexp.MustCompile(`(?m)^\*\*([^*:]+):\*\*\s*(.+)$`)

// FieldsForIssue extracts the "**Name:** value" metadata lines from the
// issue body.
func (c *Client) FieldsForIssue(ctx context.Context, ref domain.Ref) (map[string]string, error) {
	is, _, err := c.rest.Issues.Get(ctx, ref.Org, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", ref, err)
	}
	fields := map[string]string{}
	for _, m := range fieldLineRegex.FindAllStringSubmatch(is.GetBody(), -1) {
		fields[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	}
	return fields, nil
}

var issuePathRegex = regexp.MustCompile(`^https://[^/]+/([\w.-]+)/([\w.-]+)/issues/(\d+)$`)

func splitIssueURL(raw string) (org, repo string, number int, err error) {
	m := issuePathRegex.FindStringSubmatch(strings.TrimSuffix(raw, "/"))
	if m == nil {
		return "", "", 0, fmt.Errorf("not an issue url: %s", raw)
	}
	n, _ := strconv.Atoi(m[3])
	return m[1], m[2], n, nil
}

// ResolveIssueURL turns an issue URL into its record.
func (c *Client) ResolveIssueURL(ctx context.Context, raw string) (domain.Record, error) {
	org, repo, number, err := splitIssueURL(raw)
	if err != nil {
		return domain.Record{}, err
	}
	is, resp, err := c.rest.Issues.Get(ctx, org, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return domain.Record{}, fmt.Errorf("issue %s/%s#%d not found", org, repo, number)
		}
		return domain.Record{}, fmt.Errorf("get issue %s/%s#%d: %w", org, repo, number, err)
	}
	rec := issueToRecord(org, is)
	rec.Repo = repo
	return rec, nil
}
