package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/extractor"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
	"github.com/kalambet/archai/internal/storage"
)

// Manager is the single owner of session mutations. Every mutation is
// persisted and published before the call returns.
type Manager struct {
	store     Store
	extractor extractor.Extractor
	designer  Designer
	explainer Explainer
	script    *extractor.Script
	hub       *Hub
	seq       stage.Sequencer
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*state
}

// Deps groups the Manager's collaborators.
type Deps struct {
	Store     Store
	Extractor extractor.Extractor
	Designer  Designer
	Explainer Explainer
	Script    *extractor.Script
	Hub       *Hub
}

// NewManager creates a Manager. The sequencer's refinement stage follows
// whether the designer refines.
func NewManager(d Deps) *Manager {
	seq := stage.Sequencer{}
	if d.Designer != nil && d.Designer.Refines() {
		seq.RefinementPasses = 1
	}
	if d.Script == nil {
		d.Script = extractor.MustDefaultScript()
	}
	if d.Hub == nil {
		d.Hub = NewHub()
	}
	return &Manager{
		store:     d.Store,
		extractor: d.Extractor,
		designer:  d.Designer,
		explainer: d.Explainer,
		script:    d.Script,
		hub:       d.Hub,
		seq:       seq,
		logger:    slog.Default(),
		sessions:  make(map[string]*state),
	}
}

// Hub returns the event hub sessions publish to.
func (m *Manager) Hub() *Hub { return m.hub }

// Subscribe registers for events of an existing session.
func (m *Manager) Subscribe(_ context.Context, id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.load(id); err != nil {
		return nil, nil, err
	}
	ch, cancel := m.hub.Subscribe(id)
	return ch, cancel, nil
}

// Create starts a session at the introduction with the welcome message.
func (m *Manager) Create(_ context.Context) (Snapshot, error) {
	now := time.Now().UTC()
	st := &state{
		id:        uuid.New().String(),
		stage:     stage.Introduction,
		createdAt: now,
		updatedAt: now,
	}
	st.say(m.script.Welcome, false)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.commit(st); err != nil {
		return Snapshot{}, err
	}
	m.sessions[st.id] = st
	m.logger.Info("session created", "session_id", st.id)
	return st.snapshot(), nil
}

// Get returns the current snapshot of a session.
func (m *Manager) Get(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.load(id)
	if err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(), nil
}

// List returns every session, most recently updated first.
func (m *Manager) List(_ context.Context) ([]Summary, error) {
	rows, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		var rec requirements.Record
		if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
			m.logger.Warn("skipping unreadable session", "session_id", row.ID, "error", err)
			continue
		}
		s := stage.Stage(row.Stage)
		out = append(out, Summary{
			ID:         row.ID,
			Stage:      s,
			StageTitle: s.Title(),
			Vision:     rec.Get(requirements.Vision).OrEmpty(),
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return out, nil
}

// Delete removes a session. Sessions waiting on an extraction cannot be
// deleted; a pipeline result arriving for a deleted session is discarded.
func (m *Manager) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok && st.inFlight {
		return ErrBusy
	}
	if err := m.store.DeleteSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	delete(m.sessions, id)
	m.hub.Publish(Event{Type: EventDeleted, Session: Snapshot{ID: id}})
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// SendMessage runs one user turn through the extractor. On extraction
// failure the requirements and stage are left untouched, a retry prompt is
// appended and the returned error wraps extractor.ErrExtraction; the
// snapshot is still valid.
func (m *Manager) SendMessage(ctx context.Context, id, text string) (Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, ErrEmptyMessage
	}

	m.mu.Lock()
	st, err := m.load(id)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if st.inFlight {
		m.mu.Unlock()
		return st.snapshot(), ErrBusy
	}
	if !stage.AcceptsInput(st.stage) {
		m.mu.Unlock()
		return st.snapshot(), ErrInputDisabled
	}

	in := extractor.Input{
		History: st.history.Dialogue(),
		Record:  st.record,
		Stage:   st.stage,
		Message: text,
	}
	st.history = st.history.Append(conversation.Turn{Role: conversation.User, Text: text})
	st.notice = ""
	st.inFlight = true
	if err := m.commit(st); err != nil {
		st.inFlight = false
		m.mu.Unlock()
		return Snapshot{}, err
	}
	m.mu.Unlock()

	res, xerr := m.extractor.Extract(ctx, in)

	m.mu.Lock()
	defer m.mu.Unlock()
	st.inFlight = false

	if xerr == nil {
		xerr = m.applyExtraction(st, res)
	}
	if xerr != nil {
		m.logger.Warn("extraction failed", "session_id", id, "stage", st.stage, "error", xerr)
		st.say(m.script.Trouble, false)
		st.notice = m.script.Trouble
		if err := m.commit(st); err != nil {
			return st.snapshot(), err
		}
		if !errors.Is(xerr, extractor.ErrExtraction) {
			xerr = fmt.Errorf("%w: %v", extractor.ErrExtraction, xerr)
		}
		return st.snapshot(), xerr
	}

	if err := m.commit(st); err != nil {
		return st.snapshot(), err
	}
	return st.snapshot(), nil
}

// applyExtraction validates a result completely before mutating st.
func (m *Manager) applyExtraction(st *state, res extractor.Result) error {
	rec := st.record
	if len(res.Delta) > 0 {
		var err error
		if rec, err = rec.Apply(res.Delta); err != nil {
			return fmt.Errorf("applying extracted fields: %w", err)
		}
	}

	next, err := m.seq.Advance(st.stage, stage.Event{Outcome: res.Outcome(), Named: res.Field}, rec)
	if err != nil {
		return err
	}
	if next == stage.Generation {
		if err := m.enqueue(st.id, JobGenerateDesign); err != nil {
			return err
		}
	}

	reply := res.Reply
	if reply == "" {
		reply = m.prompt(next, rec)
	}
	st.record = rec
	st.say(reply, false)
	m.moveTo(st, next, res.Outcome())
	return nil
}

// prompt is what the assistant asks at s.
func (m *Manager) prompt(s stage.Stage, rec requirements.Record) string {
	if s == stage.Confirmation {
		return m.script.ConfirmWithSummary(rec)
	}
	if f, ok := stage.Field(s); ok {
		return m.script.Question(f)
	}
	return ""
}

// UploadInspiration attaches a reference image while the conversation is
// still gathering requirements.
func (m *Manager) UploadInspiration(_ context.Context, id string, img requirements.Image) (Snapshot, error) {
	if len(img.Data) == 0 || len(img.Data) > MaxInspirationBytes {
		return Snapshot{}, fmt.Errorf("%w: size must be between 1 byte and %d bytes", ErrInvalidImage, MaxInspirationBytes)
	}
	if !strings.HasPrefix(img.MIMEType, "image/") {
		return Snapshot{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, img.MIMEType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.acceptingInput(id)
	if err != nil {
		return Snapshot{}, err
	}
	st.record = st.record.WithInspiration(img)
	st.markImage(storage.ImageInspiration)
	st.say(m.script.Progress.Inspiration, true)
	if err := m.commit(st); err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(), nil
}

// EditRequirements applies a manual edit. When the edit answers the field
// currently being asked for, the conversation moves on as if the user had
// typed it.
func (m *Manager) EditRequirements(_ context.Context, id string, delta requirements.Delta) (Snapshot, error) {
	if len(delta) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no fields given", ErrInvalidEdit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.acceptingInput(id)
	if err != nil {
		return Snapshot{}, err
	}

	rec, err := st.record.Apply(delta)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidEdit, err)
	}
	if len(st.record.Changed(delta)) == 0 {
		return st.snapshot(), nil
	}

	next := st.stage
	if f, ok := stage.Field(st.stage); ok && rec.Get(f).IsSet() {
		if next, err = m.seq.Advance(st.stage, stage.Event{Outcome: stage.FieldAccepted}, rec); err != nil {
			return Snapshot{}, err
		}
	}

	st.record = rec
	st.say(m.script.Progress.Edited, true)
	if next != st.stage || next == stage.Confirmation {
		st.say(m.prompt(next, rec), false)
	}
	m.moveTo(st, next, stage.FieldAccepted)
	if err := m.commit(st); err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(), nil
}

// ChooseInterior answers the floor-plan stage's offer of an interior
// rendering.
func (m *Manager) ChooseInterior(_ context.Context, id string, render bool) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.load(id)
	if err != nil {
		return Snapshot{}, err
	}
	if st.inFlight {
		return st.snapshot(), ErrBusy
	}
	if st.stage != stage.Floorplan {
		return st.snapshot(), ErrInputDisabled
	}

	outcome := stage.InteriorSkipped
	if render {
		outcome = stage.InteriorRequested
		if err := m.enqueue(st.id, JobRenderInterior); err != nil {
			return st.snapshot(), err
		}
	}
	if err := m.advance(st, outcome); err != nil {
		return st.snapshot(), err
	}
	if render {
		st.say(m.script.Progress.Interior, true)
	} else {
		st.say(m.script.Progress.Done, true)
	}
	if err := m.commit(st); err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(), nil
}

// DismissNotice clears the session's error notice.
func (m *Manager) DismissNotice(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.load(id)
	if err != nil {
		return Snapshot{}, err
	}
	if st.notice == "" {
		return st.snapshot(), nil
	}
	st.notice = ""
	if err := m.commit(st); err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(), nil
}

// Explain returns the design rationale for a session whose requirements
// are complete. It never mutates the session.
func (m *Manager) Explain(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	st, err := m.load(id)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	rec := st.record
	m.mu.Unlock()

	if !rec.Complete() {
		return "", ErrNotReady
	}
	if m.explainer == nil {
		return "", errors.New("rationale is not configured")
	}
	return m.explainer.Explain(ctx, rec)
}

func (m *Manager) acceptingInput(id string) (*state, error) {
	st, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if st.inFlight {
		return nil, ErrBusy
	}
	if !stage.AcceptsInput(st.stage) {
		return nil, ErrInputDisabled
	}
	return st, nil
}

// load returns the cached state for id, reading it from the store on first
// use. Callers hold m.mu.
func (m *Manager) load(id string) (*state, error) {
	if st, ok := m.sessions[id]; ok {
		return st, nil
	}
	row, err := m.store.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	turns, err := m.store.ListTurns(id)
	if err != nil {
		return nil, fmt.Errorf("loading turns of %s: %w", id, err)
	}
	images, err := m.store.ListImages(id)
	if err != nil {
		return nil, fmt.Errorf("loading images of %s: %w", id, err)
	}
	st, err := restore(row, turns, images)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = st
	return st, nil
}

// commit persists st and publishes its snapshot. Callers hold m.mu.
func (m *Manager) commit(st *state) error {
	st.updatedAt = time.Now().UTC()
	sess, turns, images, err := st.rows()
	if err != nil {
		return err
	}
	if err := m.store.SaveSession(sess, turns, images); err != nil {
		return fmt.Errorf("saving session %s: %w", st.id, err)
	}
	st.persisted = st.history.Len()
	st.dirty = nil
	m.hub.Publish(Event{Type: EventUpdated, Session: st.snapshot()})
	return nil
}

// advance applies the transition table to st. Callers hold m.mu.
func (m *Manager) advance(st *state, o stage.Outcome) error {
	next, err := m.seq.Advance(st.stage, stage.Event{Outcome: o}, st.record)
	if err != nil {
		return err
	}
	m.moveTo(st, next, o)
	return nil
}

func (m *Manager) moveTo(st *state, next stage.Stage, o stage.Outcome) {
	if next == st.stage {
		return
	}
	m.logger.Info("stage changed", "session_id", st.id, "from", st.stage, "to", next, "outcome", o)
	st.stage = next
}

type jobPayload struct {
	SessionID string `json:"session_id"`
}

// enqueue places a single-attempt job for the session.
func (m *Manager) enqueue(sessionID, typ string) error {
	payload, err := json.Marshal(jobPayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        typ,
		SessionID:   sessionID,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}
	if err := m.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing %s: %w", typ, err)
	}
	m.logger.Debug("job enqueued", "session_id", sessionID, "job_id", job.ID, "type", typ)
	return nil
}
