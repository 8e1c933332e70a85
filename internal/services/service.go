package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
	"github.com/github/rollup-and-away/internal/issue"
	"github.com/github/rollup-and-away/internal/repo"
)

type Notifier interface {
	PostMessage(ctx context.Context, channel, text string) error
	// SendDirectMessage with an empty recipient targets the default channel.
	SendDirectMessage(ctx context.Context, recipient, text string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, rollup string) (string, error)
}

type Service struct {
	cfg       config.Config
	log       zerolog.Logger
	repo      *repo.Repository
	fetcher   issue.Fetcher
	llm       Summarizer
	chat      Notifier
	timeframe issue.Timeframe
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, f issue.Fetcher, llm Summarizer, chat Notifier) *Service {
	tf, err := issue.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to all-time")
		tf = issue.TimeframeAll
	}
	return &Service{cfg: cfg, log: log, repo: r, fetcher: f, llm: llm, chat: chat, timeframe: tf}
}

func targetName(t config.Target) string {
	switch {
	case t.View > 0:
		return fmt.Sprintf("%s/project-%d/view-%d", t.Org, t.Project, t.View)
	case t.Project > 0:
		return fmt.Sprintf("%s/project-%d", t.Org, t.Project)
	case t.Repo != "":
		return t.Org + "/" + t.Repo
	default:
		return "urls"
	}
}

func (s *Service) collect(ctx context.Context, t config.Target) (*issue.Collection, error) {
	switch {
	case t.View > 0:
		return issue.ForView(ctx, s.fetcher, s.log, t.Org, t.Project, t.View)
	case t.Project > 0:
		return issue.ForProject(ctx, s.fetcher, t.Org, t.Project)
	case t.Repo != "":
		return issue.ForRepo(ctx, s.fetcher, t.Org, t.Repo)
	case len(t.URLs) > 0:
		return issue.ForURLs(ctx, s.fetcher, s.log, t.URLs), nil
	}
	return nil, fmt.Errorf("target has no repo, project, view or urls")
}

func (s *Service) fetchOptions() issue.FetchOptions {
	return issue.FetchOptions{
		Comments:      s.cfg.CommentCount,
		ProjectFields: true,
		SubIssues:     true,
		FollowLinks:   true,
		Timeframe:     s.timeframe,
		Concurrency:   s.cfg.MaxConcurrency,
	}
}

func (s *Service) renderOptions() issue.RenderOptions {
	return issue.RenderOptions{
		Header:      true,
		Updates:     1,
		Author:      true,
		UpdatedAt:   true,
		Fields:      []string{s.cfg.StatusField},
		SkipIfEmpty: true,
	}
}

// RunRollup executes one full rollup over every configured target: collect,
// enrich, group by status, render, persist, notify.
func (s *Service) RunRollup(ctx context.Context) error {
	if len(s.cfg.Targets) == 0 {
		return fmt.Errorf("no rollup targets configured")
	}
	var firstErr error
	for _, t := range s.cfg.Targets {
		if err := s.runTarget(ctx, t); err != nil {
			s.log.Error().Err(err).Str("target", targetName(t)).Msg("rollup target failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) runTarget(ctx context.Context, t config.Target) error {
	name := targetName(t)
	start := time.Now()
	runID, err := s.repo.StartRun(ctx, name)
	if err != nil { return fmt.Errorf("start run: %w", err) }

	col, err := s.collect(ctx, t)
	if err == nil {
		err = col.Fetch(ctx, s.fetcher, s.log, s.fetchOptions())
	}
	if err != nil {
		_ = s.repo.FinishRun(ctx, runID, 0, err)
		return err
	}
	if t.Title != "" {
		col.Title = t.Title
	}

	frag := s.renderRollup(col)
	if err := s.repo.SaveMemories(ctx, runID, []repo.Memory{{Content: frag.Markdown, Sources: frag.Sources}}); err != nil {
		s.log.Error().Err(err).Msg("persist rollup failed")
	}
	s.notify(ctx, col, frag)

	if err := s.repo.FinishRun(ctx, runID, col.Len(), nil); err != nil {
		s.log.Error().Err(err).Msg("finish run failed")
	}
	s.log.Info().Str("target", name).Int("issues", col.Len()).
		Dur("took", time.Since(start)).Msg("rollup done")
	return nil
}

// renderRollup groups the collection by the status field and renders each
// group in order, most urgent first, with the distribution chart on top.
func (s *Service) renderRollup(col *issue.Collection) *issue.Fragment {
	var b strings.Builder
	var sources []string

	fmt.Fprintf(&b, "# %s\n\n", col.Title)
	if col.Len() > 0 {
		b.WriteString(col.Chart(s.cfg.StatusField))
		b.WriteString("\n")
	}
	statusCfg := issue.StatusConfig{EmojiOverride: s.cfg.EmojiOverride, Sections: s.cfg.EmojiSections}
	for _, group := range col.GroupBy(s.cfg.StatusField) {
		if s.cfg.EmojiOverride {
			// Group labels follow the resolved status so emoji overrides show up.
			if gi := group.Issues(); len(gi) > 0 {
				group.Title = gi[0].Status(s.cfg.StatusField, statusCfg)
			}
		}
		gf := group.Render(s.renderOptions(), 1)
		b.WriteString(gf.Markdown)
		b.WriteString("\n")
		sources = append(sources, gf.Sources...)
	}
	return &issue.Fragment{Markdown: b.String(), Sources: sources}
}

func (s *Service) notify(ctx context.Context, col *issue.Collection, frag *issue.Fragment) {
	if s.chat == nil || (s.cfg.SlackChannel == "" && len(s.cfg.SlackUsers) == 0) {
		return
	}
	text := frag.Markdown
	if s.llm != nil && s.cfg.OpenAIKey != "" {
		if summary, err := s.llm.Summarize(ctx, frag.Markdown); err != nil {
			s.log.Error().Err(err).Msg("rollup summary failed, sending raw rollup")
		} else {
			text = "*" + col.Title + "*\n\n" + summary
		}
	}
	recipients := s.cfg.SlackUsers
	if len(recipients) == 0 {
		recipients = []string{""} // default channel
	}
	for _, rcpt := range recipients {
		for _, part := range chunkText(text, 3500) {
			if err := s.chat.SendDirectMessage(ctx, rcpt, part); err != nil {
				s.log.Error().Err(err).Str("recipient", rcpt).Msg("slack send failed")
			}
		}
	}
}

// Blame reports the issues of every target whose latest update is not a
// rollup, so owners can be nudged.
func (s *Service) Blame(ctx context.Context) (*issue.Fragment, error) {
	var b strings.Builder
	var sources []string
	for _, t := range s.cfg.Targets {
		col, err := s.collect(ctx, t)
		if err != nil { return nil, err }
		if err := col.Fetch(ctx, s.fetcher, s.log, s.fetchOptions()); err != nil { return nil, err }
		stale := col.Blame(s.cfg.RollupAuthors, s.cfg.RollupMarkers, s.timeframe)
		if stale.Len() == 0 {
			continue
		}
		f := stale.Render(issue.RenderOptions{Header: true, Updates: 1, Author: true, SkipIfEmpty: false}, 0)
		b.WriteString(f.Markdown)
		b.WriteString("\n")
		sources = append(sources, f.Sources...)
	}
	if b.Len() == 0 {
		b.WriteString("All issues carry a fresh rollup update.\n")
	}
	return &issue.Fragment{Markdown: b.String(), Sources: sources}, nil
}

// Memories returns the newest persisted rollup fragments.
func (s *Service) Memories(ctx context.Context, limit int) ([]repo.Memory, error) {
	return s.repo.RecentMemories(ctx, limit)
}

// LastRuns reports the most recent run of every configured target.
func (s *Service) LastRuns(ctx context.Context) ([]repo.Run, error) {
	var out []repo.Run
	for _, t := range s.cfg.Targets {
		run, err := s.repo.LastRun(ctx, targetName(t))
		if err != nil { return nil, err }
		if run != nil { out = append(out, *run) }
	}
	return out, nil
}

// chunkText splits text into chat-sized chunks, preferring newline
// boundaries.
func chunkText(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	var parts []string
	for len(text) > size {
		cut := strings.LastIndex(text[:size], "\n")
		if cut <= 0 {
			cut = size
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if len(text) > 0 {
		parts = append(parts, text)
	}
	return parts
}
