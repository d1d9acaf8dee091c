package core

import "time"

// Persona drives content tone and topics. Persona lifecycle is owned
// by the dashboard; the engine only resolves and reads them.
type Persona struct {
	ID        string
	Name      string
	Topics    []string
	Tone      string
	Style     string
	Active    bool
	CreatedAt time.Time
}

// DraftStatus tracks a draft through its lifecycle.
type DraftStatus string

const (
	DraftStatusDraft  DraftStatus = "draft"
	DraftStatusPosted DraftStatus = "posted"
)

// Draft is a piece of generated content persisted by the save_draft
// tool and published by post_now.
type Draft struct {
	ID        string
	PersonaID string
	Content   string
	Status    DraftStatus
	CreatedAt time.Time
	PostedAt  *time.Time
}

// OAuthToken holds the downstream posting network credentials. The
// access token is refreshed out-of-band before post_now runs.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token needs a refresh, with a
// small skew so a token never expires mid-request.
func (t *OAuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now.Add(30 * time.Second))
}
