package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"litchat/internal/models"
)

// SessionRepo persists conversation snapshots. The in-process memory store
// is the source of truth while a session is live; rows land here when a
// session is archived, so transcripts survive eviction and restarts.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// SaveSession upserts the session row and replaces its message log. The
// delete-then-insert keeps the log identical to the snapshot; messages are
// append-only upstream, so replacing never loses rows.
func (r *SessionRepo) SaveSession(ctx context.Context, s models.Session) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO sessions (session_id, paper_scope, tokens_used, created_at, last_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id) DO UPDATE SET
  paper_scope = EXCLUDED.paper_scope,
  tokens_used = EXCLUDED.tokens_used,
  last_active = EXCLUDED.last_active`,
		s.SessionID, s.PaperScope, s.TokensUsed, s.CreatedAt, s.LastActive,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.SessionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_messages WHERE session_id=$1`, s.SessionID); err != nil {
		return fmt.Errorf("clear session messages %s: %w", s.SessionID, err)
	}
	for i, m := range s.Messages {
		var citations []byte
		if len(m.Citations) > 0 {
			citations, err = json.Marshal(m.Citations)
			if err != nil {
				return fmt.Errorf("marshal citations: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
INSERT INTO session_messages (session_id, seq, role, content, citations, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			s.SessionID, i, string(m.Role), m.Content, citations, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert session message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

// GetSession loads an archived session snapshot. ok=false means no archived
// copy exists; live sessions are answered by the memory store first.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (models.Session, bool, error) {
	var s models.Session
	err := r.db.Pool.QueryRow(ctx, `
SELECT session_id, COALESCE(paper_scope, '{}'), tokens_used, created_at, last_active
FROM sessions WHERE session_id=$1`, sessionID).
		Scan(&s.SessionID, &s.PaperScope, &s.TokensUsed, &s.CreatedAt, &s.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	rows, err := r.db.Pool.Query(ctx, `
SELECT role, content, COALESCE(citations, 'null'), created_at
FROM session_messages WHERE session_id=$1 ORDER BY seq`, sessionID)
	if err != nil {
		return models.Session{}, false, fmt.Errorf("list session messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	s.Messages = []models.Message{}
	for rows.Next() {
		var m models.Message
		var role string
		var citations []byte
		if err := rows.Scan(&role, &m.Content, &citations, &m.Timestamp); err != nil {
			return models.Session{}, false, fmt.Errorf("scan session message: %w", err)
		}
		m.Role = models.Role(role)
		if err := json.Unmarshal(citations, &m.Citations); err != nil {
			return models.Session{}, false, fmt.Errorf("decode citations: %w", err)
		}
		s.Messages = append(s.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return models.Session{}, false, fmt.Errorf("iterate session messages: %w", err)
	}
	return s, true, nil
}

// DeleteSession removes an archived session and its messages.
func (r *SessionRepo) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}
