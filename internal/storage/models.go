package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is the persisted pointer state of one design conversation.
type Session struct {
	ID         string
	Stage      string
	RecordJSON string // requirements.Record without image bytes
	Notice     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Turn is one transcript entry. Seq is the zero-based position in the
// session's history.
type Turn struct {
	SessionID  string
	Seq        int
	Role       string
	Text       string
	Rhetorical bool
	CreatedAt  time.Time
}

// Image kinds stored per session.
const (
	ImageInspiration = "inspiration"
	ImageFloorPlan   = "floorplan"
	ImageInterior    = "interior"
)

type Image struct {
	SessionID string
	Kind      string
	MIMEType  string
	Data      []byte
	UpdatedAt time.Time
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string
	Type        string
	SessionID   string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
