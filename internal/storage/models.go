package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one conversation thread. Its history turns live in the
// history_turns table, keyed by the session id.
type Session struct {
	ID        string
	UserLang  string
	CreatedAt time.Time
}

// Document is a source document whose chunks get embedded and indexed.
type Document struct {
	ID        string
	Title     string
	Source    string // "cli", "api", "mcp"
	Content   string
	Status    string // "queued", "indexed", "failed"
	CreatedAt time.Time
}

// Job is one unit of background work in the sqlite job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
