package strava

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func recordedSleep(sleeps *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func TestExchangeCodeSendsAuthorizationGrant(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"grant_type":    r.PostForm.Get("grant_type"),
			"code":          r.PostForm.Get("code"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_at":1754000000,"athlete":{"id":83165490,"firstname":"Jack"}}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret", WithBaseURL(server.URL), WithLogger(testLogger()))

	token, err := client.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	require.Equal(t, "authorization_code", gotForm["grant_type"])
	require.Equal(t, "the-code", gotForm["code"])
	require.Equal(t, "id", gotForm["client_id"])
	require.Equal(t, "secret", gotForm["client_secret"])

	require.Equal(t, "at", token.AccessToken)
	require.Equal(t, "rt", token.RefreshToken)
	require.Equal(t, int64(1754000000), token.ExpiresAt)
	require.NotNil(t, token.Athlete)
	require.Equal(t, int64(83165490), token.Athlete.ID)
}

func TestRefreshSendsRefreshGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "old-rt", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","expires_at":1754003600}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret", WithBaseURL(server.URL), WithLogger(testLogger()))

	token, err := client.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	require.Equal(t, "new-at", token.AccessToken)
	require.Equal(t, "new-rt", token.RefreshToken)
	require.Nil(t, token.Athlete)
}

func TestRefreshIsSingleAttempt(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("id", "secret", WithBaseURL(server.URL), WithLogger(testLogger()))

	_, err := client.Refresh(context.Background(), "rt")
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestListActivitiesQueryAndDecode(t *testing.T) {
	start := time.Date(2025, time.August, 3, 23, 59, 0, 0, time.UTC)
	end := time.Date(2025, time.August, 11, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/athlete/activities", r.URL.Path)
		require.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))

		query := r.URL.Query()
		require.Equal(t, "1754265540", query.Get("after"))
		require.Equal(t, "1754870400", query.Get("before"))
		require.Equal(t, "100", query.Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
            {"type":"Run","distance":1609.34,"moving_time":300,"start_date":"2025-08-04T08:00:00Z"},
            {"type":"Ride","distance":5000,"moving_time":600,"start_date":"2025-08-05T08:00:00Z"}
        ]`))
	}))
	defer server.Close()

	client := NewClient("id", "secret", WithBaseURL(server.URL), WithLogger(testLogger()))

	activities, err := client.ListActivities(context.Background(), "the-token", start, end)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	require.Equal(t, "Run", activities[0].Type)
	require.Equal(t, 1609.34, activities[0].Distance)
	require.Equal(t, "Ride", activities[1].Type, "non-run types pass through unfiltered")
}

func TestListActivitiesRetryBound(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewClient("id", "secret",
		WithBaseURL(server.URL),
		WithLogger(testLogger()),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}),
		WithSleep(recordedSleep(&sleeps)),
	)

	_, err := client.ListActivities(context.Background(), "tok", time.Unix(0, 0), time.Unix(60, 0))
	require.Error(t, err)
	require.Equal(t, 3, calls, "exactly three attempts, never a fourth")
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps, "linear backoff between attempts, none after the last")
}

func TestListActivitiesSucceedsMidRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewClient("id", "secret",
		WithBaseURL(server.URL),
		WithLogger(testLogger()),
		WithSleep(recordedSleep(&sleeps)),
	)

	activities, err := client.ListActivities(context.Background(), "tok", time.Unix(0, 0), time.Unix(60, 0))
	require.NoError(t, err)
	require.Empty(t, activities)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{time.Second}, sleeps)
}

func TestListActivitiesStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient("id", "secret",
		WithBaseURL(server.URL),
		WithLogger(testLogger()),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := client.ListActivities(ctx, "tok", time.Unix(0, 0), time.Unix(60, 0))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
