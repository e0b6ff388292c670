package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned when the backing storage fails. The
// conversation pipeline recovers locally: reads degrade to an empty
// history, writes are logged and the reply is still returned.
var ErrUnavailable = errors.New("history store unavailable")

// Turn is one entry of a session's ordered log.
type Turn struct {
	Seq       int
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Store is a durable, per-session ordered log of conversation turns
// backed by SQLite. Appends to a given session are serialized with a
// keyed mutex so concurrent turns on the same session can never
// interleave; different sessions proceed independently.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is refcounted so the entry can be dropped from the map
// once the last waiter releases it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore wraps an existing *sql.DB for history operations.
// The history_turns and sessions tables must already exist (created via migrations).
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sessionLock),
	}
}

// acquire takes the mutex serializing appends for one session.
func (s *Store) acquire(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) release(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

// CreateSession registers a new session and returns its id.
func (s *Store) CreateSession(ctx context.Context, userLang string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_lang, created_at) VALUES (?, ?, ?)`,
		id, userLang, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("creating session: %v: %w", err, ErrUnavailable)
	}
	return id, nil
}

// Append writes turns to the session's log in the given order, inside a
// single transaction. Sessions are created implicitly on first append.
// Once Append returns nil the turns are durable.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	l := s.acquire(sessionID)
	defer s.release(sessionID, l)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %v: %w", err, ErrUnavailable)
	}
	defer tx.Rollback()

	// Implicit session creation on first reference.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_lang, created_at) VALUES (?, '', ?)
		ON CONFLICT(id) DO NOTHING`,
		sessionID, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("ensuring session: %v: %w", err, ErrUnavailable)
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM history_turns WHERE session_id = ?`,
		sessionID,
	).Scan(&next); err != nil {
		return fmt.Errorf("computing next seq: %v: %w", err, ErrUnavailable)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, turn := range turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_turns (session_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, next+i, turn.Role, turn.Content, now,
		); err != nil {
			return fmt.Errorf("appending turn: %v: %w", err, ErrUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %v: %w", err, ErrUnavailable)
	}
	return nil
}

// Read returns the session's turns in exact append order. Re-reading
// returns the same sequence until the next append. An unknown session
// yields an empty log, not an error.
func (s *Store) Read(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, content, created_at
		FROM history_turns WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading history: %v: %w", err, ErrUnavailable)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var createdAt string
		if err := rows.Scan(&turn.Seq, &turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %v: %w", err, ErrUnavailable)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		turn.CreatedAt = t
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %v: %w", err, ErrUnavailable)
	}
	return turns, nil
}

// ReadTail returns at most limit of the most recent turns, still in
// append order. limit <= 0 returns the full log.
func (s *Store) ReadTail(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	turns, err := s.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}
