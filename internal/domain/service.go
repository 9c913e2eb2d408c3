package domain

import (
	"context"
	"sort"
)

// CredentialStore captures persistence operations for OAuth credentials.
type CredentialStore interface {
	GetCredential(ctx context.Context, participantID string) (*Credential, error)
	UpsertCredential(ctx context.Context, cred Credential) error
	AuthorizedIDs(ctx context.Context) (map[string]struct{}, error)
}

// LeaderboardStore captures persistence operations for weekly aggregates.
type LeaderboardStore interface {
	UpsertWeekly(ctx context.Context, participantID string, weekNum int, totals WeeklyTotals) error
	GetWeekly(ctx context.Context, participantID string, weekNum int) (WeeklyTotals, bool, error)
	SumAllWeeks(ctx context.Context, participantID string) (WeeklyTotals, error)
}

// Row is one participant's leaderboard line. Authorized distinguishes a
// participant who has never connected the provider from one with a genuine
// zero week: an absent aggregate row for an authorized participant reads
// as zero, while an unauthorized participant has no readable stats at all.
type Row struct {
	ParticipantID string
	Name          string
	Authorized    bool
	Totals        WeeklyTotals
}

// TeamStanding is one team's total and its contributors for a week,
// sorted by descending mileage with unauthorized members last.
type TeamStanding struct {
	Team         string
	Mileage      float64
	Contributors []Row
}

// Service serves the read path: leaderboard rows and team standings.
// It needs only the two stores; the sync pipeline is a separate path.
type Service struct {
	league League
	creds  CredentialStore
	board  LeaderboardStore
}

// NewService constructs a Service over an immutable league configuration.
func NewService(league League, creds CredentialStore, board LeaderboardStore) *Service {
	return &Service{league: league, creds: creds, board: board}
}

// League exposes the configured league to callers that render week lists.
func (s *Service) League() League {
	return s.league
}

// Leaderboard returns one row per rostered participant. A nil weekNum means
// all-time: every stored week summed per participant. Rows keep roster
// order; presentation decides the sort.
func (s *Service) Leaderboard(ctx context.Context, weekNum *int) ([]Row, error) {
	authorized, err := s.creds.AuthorizedIDs(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(s.league.Participants))
	for _, p := range s.league.Participants {
		row, err := s.row(ctx, p, authorized, weekNum)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TeamStandings returns totals for each configured team for one week.
// Membership is resolved per week, so mid-season roster substitutions
// apply only from the week they take effect.
func (s *Service) TeamStandings(ctx context.Context, weekNum int) ([]TeamStanding, error) {
	authorized, err := s.creds.AuthorizedIDs(ctx)
	if err != nil {
		return nil, err
	}

	standings := make([]TeamStanding, 0, len(s.league.Teams))
	for _, team := range s.league.Teams {
		standing := TeamStanding{Team: team.Name}
		for _, id := range team.MembersForWeek(weekNum) {
			p := Participant{ID: id, Name: s.league.ParticipantName(id)}
			row, err := s.row(ctx, p, authorized, &weekNum)
			if err != nil {
				return nil, err
			}
			if row.Authorized {
				standing.Mileage += row.Totals.Mileage
			}
			standing.Contributors = append(standing.Contributors, row)
		}
		sortContributors(standing.Contributors)
		standings = append(standings, standing)
	}
	return standings, nil
}

func (s *Service) row(ctx context.Context, p Participant, authorized map[string]struct{}, weekNum *int) (Row, error) {
	row := Row{ParticipantID: p.ID, Name: p.Name}
	if _, ok := authorized[p.ID]; !ok {
		return row, nil
	}
	row.Authorized = true

	if weekNum == nil {
		totals, err := s.board.SumAllWeeks(ctx, p.ID)
		if err != nil {
			return Row{}, err
		}
		row.Totals = totals
		return row, nil
	}

	totals, found, err := s.board.GetWeekly(ctx, p.ID, *weekNum)
	if err != nil {
		return Row{}, err
	}
	if found {
		row.Totals = totals
	}
	return row, nil
}

func sortContributors(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Authorized != rows[j].Authorized {
			return rows[i].Authorized
		}
		return rows[i].Totals.Mileage > rows[j].Totals.Mileage
	})
}
