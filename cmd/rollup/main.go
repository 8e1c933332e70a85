package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/github/rollup-and-away/internal/adapters/github"
	"github.com/github/rollup-and-away/internal/adapters/openai"
	"github.com/github/rollup-and-away/internal/adapters/slack"
	"github.com/github/rollup-and-away/internal/config"
	apphttp "github.com/github/rollup-and-away/internal/http"
	"github.com/github/rollup-and-away/internal/jobs"
	"github.com/github/rollup-and-away/internal/logger"
	"github.com/github/rollup-and-away/internal/repo"
	"github.com/github/rollup-and-away/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	repository := repo.NewRepository(db, log)
	if err := repository.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	// Adapters
	gh, err := github.New(log, github.Options{
		Token:       cfg.GitHubToken,
		BaseURL:     cfg.GitHubBaseURL,
		Timeout:     cfg.HTTPTimeout,
		Concurrency: cfg.MaxConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("github client setup failed")
	}
	llm := openai.NewClient(cfg, log)
	chat := slack.NewClient(cfg, log)

	// Services
	svc := services.New(cfg, log, repository, gh, llm, chat)

	// HTTP server
	router := apphttp.NewRouter(cfg, log, svc)

	// Cron
	cron := jobs.NewCron(cfg, log, svc, repository)
	cron.Start()
	defer cron.Stop()

	// graceful shutdown
	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil { log.Error().Err(err).Msg("http server error") }
	}
}
