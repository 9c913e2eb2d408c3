// Package postgres provides pgx-backed persistence for credentials and
// weekly aggregates.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/leaderboard/internal/domain"
	"example.com/leaderboard/internal/observability"
)

// Repository implements domain.CredentialStore and domain.LeaderboardStore
// over the tokens and leaderboards tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates both tables if they do not exist. Safe to run at
// every process start.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const tokens = `CREATE TABLE IF NOT EXISTS tokens (
        user_id TEXT PRIMARY KEY,
        access_token TEXT,
        refresh_token TEXT,
        expires_at BIGINT
    )`
	const leaderboards = `CREATE TABLE IF NOT EXISTS leaderboards (
        user_id TEXT NOT NULL,
        week_num INTEGER NOT NULL,
        mileage REAL NOT NULL,
        moving_time REAL,
        num_runs INTEGER,
        PRIMARY KEY (user_id, week_num)
    )`

	if _, err := r.pool.Exec(ctx, tokens); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, leaderboards)
	return err
}

// GetCredential returns the stored credential for a participant, or nil
// when the participant has never authorized.
func (r *Repository) GetCredential(ctx context.Context, participantID string) (*domain.Credential, error) {
	const query = `SELECT user_id, access_token, refresh_token, expires_at FROM tokens WHERE user_id=$1`

	row := r.pool.QueryRow(ctx, query, participantID)
	var cred domain.Credential
	if err := row.Scan(&cred.ParticipantID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// UpsertCredential replaces the whole credential row for the participant
// in a single atomic statement.
func (r *Repository) UpsertCredential(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO tokens (user_id, access_token, refresh_token, expires_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            expires_at = EXCLUDED.expires_at`

	_, err := r.pool.Exec(ctx, stmt, cred.ParticipantID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	return err
}

// AuthorizedIDs returns the set of participant IDs holding a credential.
// Presence in this set is what distinguishes "zero miles" from "never
// authorized" on the read path.
func (r *Repository) AuthorizedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UpsertWeekly replaces the aggregate row for (participant, week) in a
// single atomic statement, never merging old and new values.
func (r *Repository) UpsertWeekly(ctx context.Context, participantID string, weekNum int, totals domain.WeeklyTotals) error {
	const stmt = `INSERT INTO leaderboards (user_id, week_num, mileage, moving_time, num_runs)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id, week_num) DO UPDATE SET
            mileage = EXCLUDED.mileage,
            moving_time = EXCLUDED.moving_time,
            num_runs = EXCLUDED.num_runs`

	if _, err := r.pool.Exec(ctx, stmt, participantID, weekNum, totals.Mileage, totals.MovingTime, totals.NumRuns); err != nil {
		return err
	}
	observability.RecordWeeklyUpserted(time.Now().UTC())
	return nil
}

// GetWeekly returns the stored aggregate for one week. The second return
// is false when the week was never successfully synced, which is not the
// same as a stored zero.
func (r *Repository) GetWeekly(ctx context.Context, participantID string, weekNum int) (domain.WeeklyTotals, bool, error) {
	const query = `SELECT mileage, moving_time, num_runs FROM leaderboards WHERE user_id=$1 AND week_num=$2`

	row := r.pool.QueryRow(ctx, query, participantID, weekNum)
	var totals domain.WeeklyTotals
	if err := row.Scan(&totals.Mileage, &totals.MovingTime, &totals.NumRuns); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WeeklyTotals{}, false, nil
		}
		return domain.WeeklyTotals{}, false, err
	}
	return totals, true, nil
}

// SumAllWeeks totals every stored week for the participant. Weeks without
// a row contribute nothing.
func (r *Repository) SumAllWeeks(ctx context.Context, participantID string) (domain.WeeklyTotals, error) {
	const query = `SELECT COALESCE(SUM(mileage), 0), COALESCE(SUM(moving_time), 0), COALESCE(SUM(num_runs), 0)
        FROM leaderboards WHERE user_id=$1`

	row := r.pool.QueryRow(ctx, query, participantID)
	var totals domain.WeeklyTotals
	if err := row.Scan(&totals.Mileage, &totals.MovingTime, &totals.NumRuns); err != nil {
		return domain.WeeklyTotals{}, err
	}
	return totals, nil
}
