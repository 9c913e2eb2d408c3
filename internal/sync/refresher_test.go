package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/leaderboard/internal/domain"
	"example.com/leaderboard/internal/strava"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type memCreds struct {
	creds   map[string]domain.Credential
	upserts int
}

func newMemCreds(creds ...domain.Credential) *memCreds {
	m := &memCreds{creds: make(map[string]domain.Credential)}
	for _, c := range creds {
		m.creds[c.ParticipantID] = c
	}
	return m
}

func (m *memCreds) GetCredential(ctx context.Context, id string) (*domain.Credential, error) {
	if c, ok := m.creds[id]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCreds) UpsertCredential(ctx context.Context, cred domain.Credential) error {
	m.creds[cred.ParticipantID] = cred
	m.upserts++
	return nil
}

func (m *memCreds) AuthorizedIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(m.creds))
	for id := range m.creds {
		ids[id] = struct{}{}
	}
	return ids, nil
}

type stubTokenClient struct {
	token *strava.Token
	err   error
	calls int
}

func (s *stubTokenClient) Refresh(ctx context.Context, refreshToken string) (*strava.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func fixedNow() time.Time {
	return time.Unix(1_754_300_000, 0)
}

func TestEnsureValidNoCredential(t *testing.T) {
	store := newMemCreds()
	client := &stubTokenClient{}
	refresher := NewRefresher(store, client, fixedNow, quietLogger())

	ok, err := refresher.EnsureValid(context.Background(), "unknown")
	require.NoError(t, err, "missing credential is a silent no-op, not an error")
	require.False(t, ok)
	require.Zero(t, client.calls)
	require.Zero(t, store.upserts)
}

func TestEnsureValidUnexpiredSkipsNetwork(t *testing.T) {
	store := newMemCreds(domain.Credential{
		ParticipantID: "1",
		AccessToken:   "at",
		RefreshToken:  "rt",
		ExpiresAt:     fixedNow().Unix() + 60,
	})
	client := &stubTokenClient{}
	refresher := NewRefresher(store, client, fixedNow, quietLogger())

	ok, err := refresher.EnsureValid(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, client.calls)
	require.Zero(t, store.upserts)
}

func TestEnsureValidRefreshesExpired(t *testing.T) {
	store := newMemCreds(domain.Credential{
		ParticipantID: "1",
		AccessToken:   "stale",
		RefreshToken:  "rt",
		ExpiresAt:     fixedNow().Unix() - 60,
	})
	client := &stubTokenClient{token: &strava.Token{
		AccessToken:  "fresh",
		RefreshToken: "rt2",
		ExpiresAt:    fixedNow().Unix() + 21600,
	}}
	refresher := NewRefresher(store, client, fixedNow, quietLogger())

	ok, err := refresher.EnsureValid(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, client.calls)
	require.Equal(t, 1, store.upserts, "exactly one upsert on refresh success")

	stored := store.creds["1"]
	require.Equal(t, "fresh", stored.AccessToken)
	require.Equal(t, "rt2", stored.RefreshToken)
	require.Equal(t, fixedNow().Unix()+21600, stored.ExpiresAt)
}

func TestEnsureValidRefreshFailureKeepsCredential(t *testing.T) {
	original := domain.Credential{
		ParticipantID: "1",
		AccessToken:   "stale",
		RefreshToken:  "rt",
		ExpiresAt:     fixedNow().Unix() - 60,
	}
	store := newMemCreds(original)
	client := &stubTokenClient{err: errors.New("rate limited")}
	refresher := NewRefresher(store, client, fixedNow, quietLogger())

	ok, err := refresher.EnsureValid(context.Background(), "1")
	require.Error(t, err)
	require.False(t, ok)
	require.Zero(t, store.upserts, "a failed refresh must not mutate the stored credential")
	require.Equal(t, original, store.creds["1"])
}

func TestEnsureValidBoundaryIsExpired(t *testing.T) {
	// expires_at equal to now is not strictly in the future, so it refreshes.
	store := newMemCreds(domain.Credential{
		ParticipantID: "1",
		RefreshToken:  "rt",
		ExpiresAt:     fixedNow().Unix(),
	})
	client := &stubTokenClient{token: &strava.Token{AccessToken: "fresh", RefreshToken: "rt2", ExpiresAt: fixedNow().Unix() + 100}}
	refresher := NewRefresher(store, client, fixedNow, quietLogger())

	ok, err := refresher.EnsureValid(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, client.calls)
}
