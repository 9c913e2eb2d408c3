// Package domain defines the business logic for the mileage leaderboard.
package domain

import (
	"sort"
	"time"
)

// Participant is one tracked runner, identified by the provider's athlete ID.
type Participant struct {
	ID   string
	Name string
}

// WeekWindow is a configured start/end instant pair labeled by an integer
// week number. Week numbers are opaque keys: windows may overlap or leave
// gaps, and nothing here assumes calendar continuity.
type WeekWindow struct {
	Num   int
	Start time.Time
	End   time.Time
}

// Started reports whether the window's start instant has been reached.
func (w WeekWindow) Started(now time.Time) bool {
	return !w.Start.After(now)
}

// Contains reports whether now falls inside the window, bounds inclusive.
func (w WeekWindow) Contains(now time.Time) bool {
	return !now.Before(w.Start) && !now.After(w.End)
}

// TeamMember scopes a participant's team membership to a week-number range.
// FromWeek/ToWeek of zero mean unbounded on that side.
type TeamMember struct {
	ParticipantID string
	FromWeek      int
	ToWeek        int
}

// ActiveIn reports whether the member counts for the given week.
func (m TeamMember) ActiveIn(weekNum int) bool {
	if m.FromWeek != 0 && weekNum < m.FromWeek {
		return false
	}
	if m.ToWeek != 0 && weekNum > m.ToWeek {
		return false
	}
	return true
}

// Team is a fixed named roster of members.
type Team struct {
	Name    string
	Members []TeamMember
}

// MembersForWeek returns the participant IDs active for the given week.
func (t Team) MembersForWeek(weekNum int) []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m.ActiveIn(weekNum) {
			ids = append(ids, m.ParticipantID)
		}
	}
	return ids
}

// League is the immutable configuration the sync and read paths operate on:
// the roster, the week table, and the team rosters. It is constructed once
// from configuration and passed in, never referenced as ambient state.
type League struct {
	Participants []Participant
	Weeks        []WeekWindow
	Teams        []Team
}

// ParticipantName resolves a display name, falling back to the raw ID.
func (l League) ParticipantName(id string) string {
	for _, p := range l.Participants {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

// Week looks up a window by number.
func (l League) Week(num int) (WeekWindow, bool) {
	for _, w := range l.Weeks {
		if w.Num == num {
			return w, true
		}
	}
	return WeekWindow{}, false
}

// WeeksAscending returns the week table sorted by week number.
func (l League) WeeksAscending() []WeekWindow {
	weeks := make([]WeekWindow, len(l.Weeks))
	copy(weeks, l.Weeks)
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Num < weeks[j].Num })
	return weeks
}

// CurrentWeek returns the window containing now, if any.
func (l League) CurrentWeek(now time.Time) (WeekWindow, bool) {
	for _, w := range l.WeeksAscending() {
		if w.Contains(now) {
			return w, true
		}
	}
	return WeekWindow{}, false
}
