package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ragdesk/ragdesk/internal/session"
)

type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Sessions

func (q *Queries) LoadSession(ctx context.Context, id string) (session.State, bool, error) {
	var st session.State
	var authenticated int
	var expiresAt sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT authenticated, username, user_id, access_token, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&authenticated, &st.Username, &st.UserID, &st.Token.Value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, false, nil
	}
	if err != nil {
		return session.State{}, false, fmt.Errorf("getting session: %w", err)
	}
	st.Authenticated = authenticated != 0
	if expiresAt.Valid && expiresAt.String != "" {
		st.Token.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt.String)
	}
	return st, true, nil
}

func (q *Queries) SaveSession(ctx context.Context, id string, st session.State) error {
	var expiresAt sql.NullString
	if !st.Token.ExpiresAt.IsZero() {
		expiresAt = sql.NullString{String: st.Token.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	authenticated := 0
	if st.Authenticated {
		authenticated = 1
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sessions (id, authenticated, username, user_id, access_token, expires_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     authenticated = excluded.authenticated,
		     username = excluded.username,
		     user_id = excluded.user_id,
		     access_token = excluded.access_token,
		     expires_at = excluded.expires_at,
		     updated_at = datetime('now')`,
		id, authenticated, st.Username, st.UserID, st.Token.Value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// TouchSession bumps a session's updated_at so DeleteSessionsBefore keeps it.
func (q *Queries) TouchSession(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE sessions SET updated_at = datetime('now') WHERE id = ?`, id); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// DeleteSessionsBefore removes sessions not updated since cutoff and returns
// how many were removed.
func (q *Queries) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
