package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/leaderboard/internal/config"
	persistence "example.com/leaderboard/internal/persistence/postgres"
	"example.com/leaderboard/internal/strava"
	syncer "example.com/leaderboard/internal/sync"
)

func main() {
	var (
		participant = flag.String("participant", "", "sync only this participant ID")
		currentOnly = flag.Bool("current", false, "sync only the week containing now")
		interval    = flag.Duration("interval", 0, "re-run on this interval instead of exiting (0 = one-shot)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	league, err := cfg.League()
	if err != nil {
		log.Fatalf("invalid league configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		cancel()
	}()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to bootstrap schema: %v", err)
	}

	client := strava.NewClient(cfg.ClientID, cfg.ClientSecret,
		strava.WithRetryPolicy(strava.RetryPolicy{
			MaxAttempts: cfg.FetchMaxAttempts,
			Backoff:     strava.LinearBackoff(cfg.FetchBaseDelay),
		}),
	)

	refresher := syncer.NewRefresher(repo, client, nil, nil)
	orchestrator := syncer.NewOrchestrator(league, refresher, repo, repo, client)

	clean := runOnce(ctx, orchestrator, *participant, *currentOnly)

	if *interval > 0 {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				clean = runOnce(ctx, orchestrator, *participant, *currentOnly)
			}
		}
	}

	if !clean {
		os.Exit(1)
	}
}

// runOnce performs a single sync pass and reports whether it completed
// without participant failures.
func runOnce(ctx context.Context, orchestrator *syncer.Orchestrator, participant string, currentOnly bool) bool {
	switch {
	case currentOnly:
		failed, found, err := orchestrator.SyncCurrentWeek(ctx)
		if err != nil {
			log.Printf("current week sync failed: %v", err)
			return false
		}
		if !found {
			log.Printf("no configured week contains now, nothing to do")
			return true
		}
		if len(failed) > 0 {
			log.Printf("current week sync finished with %d failed participant(s): %v", len(failed), failed)
			return false
		}

	case participant != "":
		report, err := orchestrator.SyncParticipantUpToNow(ctx, participant)
		if err != nil {
			if errors.Is(err, syncer.ErrNotAuthorized) {
				log.Printf("participant %s has not authorized, nothing to do", participant)
				return true
			}
			log.Printf("participant sync failed: %v", err)
			return false
		}
		if !report.OK() {
			log.Printf("run %s finished with failures: %v", report.RunID, report.Failed)
			return false
		}

	default:
		report, err := orchestrator.SyncUpToNow(ctx)
		if err != nil {
			log.Printf("sync failed: %v", err)
			return false
		}
		if !report.OK() {
			log.Printf("run %s finished with failures: %v", report.RunID, report.Failed)
			return false
		}
		log.Printf("run %s: all %d elapsed week(s) updated", report.RunID, len(report.Weeks))
	}
	return true
}
