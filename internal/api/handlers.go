// Package api exposes HTTP handlers for the leaderboard service.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"example.com/leaderboard/internal/domain"
	"example.com/leaderboard/internal/strava"
)

// CodeExchanger redeems an OAuth authorization code. Implemented by the
// strava client.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*strava.Token, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service   *domain.Service
	exchanger CodeExchanger
	creds     domain.CredentialStore
	logger    *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, exchanger CodeExchanger, creds domain.CredentialStore, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handler{service: service, exchanger: exchanger, creds: creds, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/exchange_token", h.exchangeToken)
	mux.HandleFunc("/leaderboards", h.leaderboards)
	mux.HandleFunc("/teams", h.teams)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Stat is a leaderboard cell that is either a recorded number or "-" for a
// participant who never authorized. The dash is a presentation detail; the
// domain carries the distinction as a flag, never a sentinel string.
type Stat struct {
	Recorded bool
	Value    float64
}

// MarshalJSON emits the raw number, or "-" when nothing was ever recorded.
func (s Stat) MarshalJSON() ([]byte, error) {
	if !s.Recorded {
		return json.Marshal("-")
	}
	return json.Marshal(s.Value)
}

// LeaderboardEntry is one participant's line in the dashboard response.
type LeaderboardEntry struct {
	Name    string `json:"name"`
	Mileage Stat   `json:"mileage"`
	Pace    string `json:"pace"`
	NumRuns Stat   `json:"numRuns"`
}

// TeamResponse is one team's standing for a week.
type TeamResponse struct {
	Team         string             `json:"team"`
	Mileage      float64            `json:"mileage"`
	Contributors []LeaderboardEntry `json:"contributors"`
}

func (h *Handler) exchangeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "no code provided")
		return
	}

	token, err := h.exchanger.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Printf("code exchange failed: %v", err)
		writeError(w, http.StatusInternalServerError, "exchange_failed", "token exchange failed")
		return
	}
	if token.Athlete == nil {
		writeError(w, http.StatusBadGateway, "exchange_failed", "token response carried no athlete")
		return
	}

	athleteID := strconv.FormatInt(token.Athlete.ID, 10)
	err = h.creds.UpsertCredential(r.Context(), domain.Credential{
		ParticipantID: athleteID,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.ExpiresAt,
	})
	if err != nil {
		h.logger.Printf("storing credential for athlete %s failed: %v", athleteID, err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to store credential")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Authorization successful! You can close this window."))
}

func (h *Handler) leaderboards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var weekNum *int
	if raw := r.URL.Query().Get("weekNum"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "weekNum must be an integer")
			return
		}
		weekNum = &parsed
	}

	rows, err := h.service.Leaderboard(r.Context(), weekNum)
	if err != nil {
		h.logger.Printf("leaderboard query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) teams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	raw := r.URL.Query().Get("weekNum")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "weekNum is required")
		return
	}
	weekNum, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "weekNum must be an integer")
		return
	}

	standings, err := h.service.TeamStandings(r.Context(), weekNum)
	if err != nil {
		h.logger.Printf("team standings query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := make([]TeamResponse, 0, len(standings))
	for _, standing := range standings {
		team := TeamResponse{Team: standing.Team, Mileage: standing.Mileage}
		for _, row := range standing.Contributors {
			team.Contributors = append(team.Contributors, toEntry(row))
		}
		resp = append(resp, team)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toEntry(row domain.Row) LeaderboardEntry {
	entry := LeaderboardEntry{Name: row.Name, Pace: "-"}
	if !row.Authorized {
		return entry
	}
	entry.Mileage = Stat{Recorded: true, Value: row.Totals.Mileage}
	entry.NumRuns = Stat{Recorded: true, Value: float64(row.Totals.NumRuns)}
	if pace, ok := row.Totals.Pace(); ok {
		entry.Pace = pace
	}
	return entry
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
