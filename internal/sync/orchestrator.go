package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/leaderboard/internal/domain"
	"example.com/leaderboard/internal/observability"
)

var (
	// ErrWeekNotStarted signals the future-week stop condition. It is a
	// sentinel, not a failure: the caller stops advancing rather than
	// retrying.
	ErrWeekNotStarted = errors.New("week has not started yet")
	// ErrNotAuthorized means the participant never completed the OAuth
	// redirect. A silent skip on the sync path.
	ErrNotAuthorized = errors.New("participant has not authorized")
	// ErrUnknownWeek means the week number is absent from the configured
	// week table.
	ErrUnknownWeek = errors.New("unknown week number")
)

// TokenValidator is the refresher contract the orchestrator depends on.
type TokenValidator interface {
	EnsureValid(ctx context.Context, participantID string) (bool, error)
}

// ActivitySource retrieves a participant's activities for a window. The
// production implementation is the strava client with its retry policy.
type ActivitySource interface {
	ListActivities(ctx context.Context, accessToken string, start, end time.Time) ([]domain.Activity, error)
}

// Option configures optional behaviour for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the orchestrator's logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator walks participants and weeks, running one refresh → fetch →
// aggregate → upsert unit at a time. Execution is strictly sequential to
// respect the provider's per-credential rate limits; the store's atomic
// upserts are what would keep a parallel variant correct.
type Orchestrator struct {
	league    domain.League
	refresher TokenValidator
	creds     domain.CredentialStore
	board     domain.LeaderboardStore
	source    ActivitySource
	now       func() time.Time
	logger    *log.Logger
}

// NewOrchestrator constructs an Orchestrator over an immutable league
// configuration.
func NewOrchestrator(league domain.League, refresher TokenValidator, creds domain.CredentialStore, board domain.LeaderboardStore, source ActivitySource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		league:    league,
		refresher: refresher,
		creds:     creds,
		board:     board,
		source:    source,
		now:       time.Now,
		logger:    log.New(log.Writer(), "[sync] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncParticipantWeek runs one unit of work. Future weeks abort before any
// network call with ErrWeekNotStarted. A failed fetch returns an error
// without touching the store, so a previously synced aggregate for the
// same key survives transient provider trouble.
func (o *Orchestrator) SyncParticipantWeek(ctx context.Context, participantID string, weekNum int) error {
	week, ok := o.league.Week(weekNum)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWeek, weekNum)
	}
	if !week.Started(o.now()) {
		return ErrWeekNotStarted
	}

	ok, err := o.refresher.EnsureValid(ctx, participantID)
	if err != nil {
		return fmt.Errorf("participant %s: %w", participantID, err)
	}
	if !ok {
		return ErrNotAuthorized
	}

	cred, err := o.creds.GetCredential(ctx, participantID)
	if err != nil {
		return fmt.Errorf("participant %s: load credential: %w", participantID, err)
	}
	if cred == nil {
		return ErrNotAuthorized
	}

	activities, err := o.source.ListActivities(ctx, cred.AccessToken, week.Start, week.End)
	if err != nil {
		return fmt.Errorf("participant %s week %d: %w", participantID, weekNum, err)
	}

	totals := domain.Aggregate(activities)
	if err := o.board.UpsertWeekly(ctx, participantID, weekNum, totals); err != nil {
		return fmt.Errorf("participant %s week %d: upsert: %w", participantID, weekNum, err)
	}

	o.logger.Printf("week %d: %s (%s): %.2f miles over %d run(s)",
		weekNum, o.league.ParticipantName(participantID), participantID, totals.Mileage, totals.NumRuns)
	return nil
}

// SyncAllParticipants syncs one week for every rostered participant,
// sequentially. One participant's failure never aborts the others; failed
// participant IDs are collected and returned after the full pass.
// Unauthorized participants are skipped silently and do not count as
// failures. ErrWeekNotStarted is returned immediately because the window
// is equally in the future for everyone.
func (o *Orchestrator) SyncAllParticipants(ctx context.Context, weekNum int) ([]string, error) {
	var failed []string
	for _, p := range o.league.Participants {
		err := o.SyncParticipantWeek(ctx, p.ID, weekNum)
		switch {
		case err == nil:
		case errors.Is(err, ErrWeekNotStarted), errors.Is(err, ErrUnknownWeek):
			return failed, err
		case errors.Is(err, ErrNotAuthorized):
			o.logger.Printf("week %d: skipping %s (%s): not authorized", weekNum, p.Name, p.ID)
		default:
			observability.RecordSyncFailure()
			o.logger.Printf("week %d: failed for %s (%s): %v", weekNum, p.Name, p.ID, err)
			failed = append(failed, p.ID)
		}
	}
	return failed, nil
}

// Report summarises one sync run: the week numbers attempted and the
// participant IDs that failed per week.
type Report struct {
	RunID  string
	Weeks  []int
	Failed map[int][]string
}

// OK reports whether the run completed without any participant failures.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// SyncUpToNow walks the configured weeks in ascending numeric order and
// syncs every participant for each week whose start has been reached. The
// walk stops advancing at the first week still in the future; a week with
// failures does not stop the walk to later weeks.
func (o *Orchestrator) SyncUpToNow(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Failed: make(map[int][]string)}
	o.logger.Printf("run %s: syncing all participants up to now", report.RunID)

	for _, week := range o.league.WeeksAscending() {
		if !week.Started(o.now()) {
			o.logger.Printf("run %s: stopped at week %d (not started)", report.RunID, week.Num)
			break
		}

		failed, err := o.SyncAllParticipants(ctx, week.Num)
		if err != nil {
			// Only the future-week sentinel stops the fan-out early, and
			// Started ruled it out above.
			return report, err
		}
		report.Weeks = append(report.Weeks, week.Num)
		if len(failed) > 0 {
			report.Failed[week.Num] = failed
		}
	}
	return report, nil
}

// SyncParticipantUpToNow walks every elapsed week for one participant.
// Per-week failures are collected; the walk keeps going.
func (o *Orchestrator) SyncParticipantUpToNow(ctx context.Context, participantID string) (Report, error) {
	report := Report{RunID: uuid.NewString(), Failed: make(map[int][]string)}
	o.logger.Printf("run %s: syncing participant %s up to now", report.RunID, participantID)

	for _, week := range o.league.WeeksAscending() {
		if !week.Started(o.now()) {
			break
		}

		err := o.SyncParticipantWeek(ctx, participantID, week.Num)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotAuthorized):
			// Applies to every week; nothing more to do.
			return report, err
		default:
			observability.RecordSyncFailure()
			o.logger.Printf("run %s: week %d failed for %s: %v", report.RunID, week.Num, participantID, err)
			report.Failed[week.Num] = append(report.Failed[week.Num], participantID)
		}
		report.Weeks = append(report.Weeks, week.Num)
	}
	return report, nil
}

// SyncCurrentWeek syncs every participant for the week containing now.
// The second return is false when no configured window contains now.
func (o *Orchestrator) SyncCurrentWeek(ctx context.Context) ([]string, bool, error) {
	week, ok := o.league.CurrentWeek(o.now())
	if !ok {
		return nil, false, nil
	}
	failed, err := o.SyncAllParticipants(ctx, week.Num)
	return failed, true, err
}
