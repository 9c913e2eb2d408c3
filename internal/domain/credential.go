package domain

import "time"

// Credential is the OAuth token triple stored for a participant who has
// completed authorization. One row per participant; it is updated in place
// on refresh and never deleted automatically, so a transient provider
// outage cannot destroy a participant's ability to re-authenticate.
type Credential struct {
	ParticipantID string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     int64 // unix seconds
}

// Expired reports whether the access token needs refreshing. A token is
// valid only while ExpiresAt is strictly in the future.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}
