// Package session owns every design conversation. The Manager is the only
// writer of a session's stage, requirements and transcript; other components
// receive immutable snapshots and return deltas.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/pipeline"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
	"github.com/kalambet/archai/internal/storage"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrBusy          = errors.New("session is busy")
	ErrInputDisabled = errors.New("session is not accepting this input")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrInvalidImage  = errors.New("invalid inspiration image")
	ErrInvalidEdit   = errors.New("invalid requirement edit")
	ErrNotReady      = errors.New("requirements are not complete yet")
	ErrStaleJob      = errors.New("job no longer matches session stage")
)

// MaxInspirationBytes caps uploaded inspiration images.
const MaxInspirationBytes = 10 << 20

// Job types placed on the storage queue.
const (
	JobGenerateDesign = "generate_design"
	JobRenderInterior = "render_interior"
)

// JobTypes lists every job type the Manager can run.
var JobTypes = []string{JobGenerateDesign, JobRenderInterior}

// Snapshot is an immutable view of one session.
type Snapshot struct {
	ID        string              `json:"id"`
	Stage     stage.Stage         `json:"stage"`
	Record    requirements.Record `json:"requirements"`
	Turns     []conversation.Turn `json:"turns"`
	Busy      bool                `json:"busy"`
	Notice    string              `json:"notice,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Summary is the list view of a session.
type Summary struct {
	ID         string      `json:"id"`
	Stage      stage.Stage `json:"stage"`
	StageTitle string      `json:"stage_title"`
	Vision     string      `json:"vision,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Store is the persistence the Manager needs.
type Store interface {
	SaveSession(sess storage.Session, turns []storage.Turn, images []storage.Image) error
	GetSession(id string) (storage.Session, error)
	ListSessions() ([]storage.Session, error)
	DeleteSession(id string) error
	ListTurns(sessionID string) ([]storage.Turn, error)
	ListImages(sessionID string) ([]storage.Image, error)
	EnqueueJob(job storage.Job) error
	AbandonUnfinishedJobs(reason string) (int, error)
}

// Designer runs the generation pipeline. *pipeline.Designer satisfies it.
type Designer interface {
	Generate(ctx context.Context, rec requirements.Record, progress func(stage.Stage)) (pipeline.Outcome, error)
	RenderInterior(ctx context.Context, rec requirements.Record) (requirements.Image, error)
	Refines() bool
}

// Explainer justifies a completed requirement record.
type Explainer interface {
	Explain(ctx context.Context, rec requirements.Record) (string, error)
}
