package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// GetPersona resolves a persona by id.
func (s *Store) GetPersona(ctx context.Context, id string) (*core.Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, topics, tone, style, active, created_at
		FROM personas WHERE id = ?
	`, id)
	p, err := scanPersona(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrPersonaNotFound(id)
	}
	if err != nil {
		return nil, core.ErrPersistence("get persona", err)
	}
	return p, nil
}

// FindActivePersona returns the persona flagged active, or a not-found
// error when none is configured.
func (s *Store) FindActivePersona(ctx context.Context) (*core.Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, topics, tone, style, active, created_at
		FROM personas WHERE active = 1 ORDER BY created_at ASC LIMIT 1
	`)
	p, err := scanPersona(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrPersonaNotFound("active")
	}
	if err != nil {
		return nil, core.ErrPersistence("find active persona", err)
	}
	return p, nil
}

// SavePersona creates or replaces a persona.
func (s *Store) SavePersona(ctx context.Context, p *core.Persona) error {
	topicsJSON, err := json.Marshal(p.Topics)
	if err != nil {
		return fmt.Errorf("marshaling topics: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (id, name, topics, tone, style, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			topics = excluded.topics,
			tone = excluded.tone,
			style = excluded.style,
			active = excluded.active
	`, p.ID, p.Name, string(topicsJSON), p.Tone, p.Style, boolToInt(p.Active), p.CreatedAt)
	if err != nil {
		return core.ErrPersistence("save persona", err)
	}
	return nil
}

func scanPersona(row rowScanner) (*core.Persona, error) {
	var (
		p          core.Persona
		topicsJSON string
		active     int
	)
	if err := row.Scan(&p.ID, &p.Name, &topicsJSON, &p.Tone, &p.Style, &active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Active = active != 0
	if err := json.Unmarshal([]byte(topicsJSON), &p.Topics); err != nil {
		return nil, fmt.Errorf("unmarshaling topics: %w", err)
	}
	return &p, nil
}

// SaveDraft persists a generated draft.
func (s *Store) SaveDraft(ctx context.Context, d *core.Draft) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = core.DraftStatusDraft
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, persona_id, content, status, created_at, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.PersonaID, d.Content, string(d.Status), d.CreatedAt, nullableTime(d.PostedAt))
	if err != nil {
		return core.ErrPersistence("save draft", err)
	}
	return nil
}

// ListDrafts returns a persona's drafts, newest first.
func (s *Store) ListDrafts(ctx context.Context, personaID string) ([]*core.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, content, status, created_at, posted_at
		FROM drafts WHERE persona_id = ? ORDER BY created_at DESC
	`, personaID)
	if err != nil {
		return nil, core.ErrPersistence("list drafts", err)
	}
	defer func() { _ = rows.Close() }()

	var drafts []*core.Draft
	for rows.Next() {
		var (
			d        core.Draft
			status   string
			postedAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.PersonaID, &d.Content, &status, &d.CreatedAt, &postedAt); err != nil {
			return nil, core.ErrPersistence("scan draft", err)
		}
		d.Status = core.DraftStatus(status)
		if postedAt.Valid {
			t := postedAt.Time
			d.PostedAt = &t
		}
		drafts = append(drafts, &d)
	}
	return drafts, rows.Err()
}

// MarkPosted flags a draft as published.
func (s *Store) MarkPosted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drafts SET status = ?, posted_at = ? WHERE id = ?
	`, string(core.DraftStatusPosted), at, id)
	if err != nil {
		return core.ErrPersistence("mark draft posted", err)
	}
	return nil
}

// GetToken returns the posting network credentials, nil when the
// account was never connected.
func (s *Store) GetToken(ctx context.Context) (*core.OAuthToken, error) {
	var t core.OAuthToken
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at FROM oauth_tokens WHERE id = 1
	`).Scan(&t.AccessToken, &t.RefreshToken, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.ErrPersistence("get token", err)
	}
	return &t, nil
}

// SaveToken stores the posting network credentials.
func (s *Store) SaveToken(ctx context.Context, t *core.OAuthToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (id, access_token, refresh_token, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at
	`, t.AccessToken, t.RefreshToken, t.ExpiresAt)
	if err != nil {
		return core.ErrPersistence("save token", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
