// Package sync drives the weekly aggregation pipeline: credential refresh,
// activity fetch, reduction, and idempotent persistence.
package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/leaderboard/internal/domain"
	"example.com/leaderboard/internal/observability"
	"example.com/leaderboard/internal/strava"
)

// TokenClient is the slice of the provider client the refresher needs.
type TokenClient interface {
	Refresh(ctx context.Context, refreshToken string) (*strava.Token, error)
}

// Refresher ensures a participant's access token is usable before a fetch.
type Refresher struct {
	store  domain.CredentialStore
	client TokenClient
	now    func() time.Time
	logger *log.Logger
}

// NewRefresher constructs a Refresher. now defaults to time.Now when nil.
func NewRefresher(store domain.CredentialStore, client TokenClient, now func() time.Time, logger *log.Logger) *Refresher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[refresher] ", log.LstdFlags)
	}
	return &Refresher{store: store, client: client, now: now, logger: logger}
}

// EnsureValid makes the participant's stored access token valid, refreshing
// it through the provider when expired.
//
// Returns (false, nil) when the participant has never authorized: a silent
// no-op, not an error. Returns (false, err) when the refresh grant failed;
// the stored credential is left untouched so the participant can recover
// once the provider does. On success exactly one upsert happened, or none
// at all if the token was still valid.
func (r *Refresher) EnsureValid(ctx context.Context, participantID string) (bool, error) {
	cred, err := r.store.GetCredential(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return false, nil
	}

	if !cred.Expired(r.now()) {
		return true, nil
	}

	r.logger.Printf("token expired for participant %s, refreshing", participantID)
	token, err := r.client.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		observability.RecordTokenRefresh("failure")
		r.logger.Printf("token refresh failed for participant %s: %v", participantID, err)
		return false, fmt.Errorf("refresh token: %w", err)
	}

	if err := r.store.UpsertCredential(ctx, domain.Credential{
		ParticipantID: participantID,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.ExpiresAt,
	}); err != nil {
		observability.RecordTokenRefresh("failure")
		return false, fmt.Errorf("persist refreshed credential: %w", err)
	}

	observability.RecordTokenRefresh("success")
	return true, nil
}
