package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/archai/internal/pipeline"
	"github.com/kalambet/archai/internal/proxy"
	"github.com/kalambet/archai/internal/stage"
	"github.com/kalambet/archai/internal/storage"
)

// RunJob executes a queued pipeline job. It is the worker's entrypoint. A
// returned error marks the job failed; the session has already been settled
// by then, including when the pipeline panics.
func (m *Manager) RunJob(ctx context.Context, job storage.Job) (err error) {
	var p jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if p.SessionID == "" {
		p.SessionID = job.SessionID
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.settle(p.SessionID, err)
		}
	}()

	switch job.Type {
	case JobGenerateDesign:
		return m.runGeneration(ctx, p.SessionID)
	case JobRenderInterior:
		return m.runInterior(ctx, p.SessionID)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// claim loads the session and checks it is waiting at want.
func (m *Manager) claim(id string, want stage.Stage) (*state, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if st.stage != want {
		return nil, fmt.Errorf("%w: session %s is at %s, want %s", ErrStaleJob, id, st.stage, want)
	}
	return st, nil
}

func (m *Manager) runGeneration(ctx context.Context, id string) error {
	st, err := m.claim(id, stage.Generation)
	if err != nil {
		return err
	}
	m.mu.Lock()
	rec := st.record
	m.mu.Unlock()

	progress := func(s stage.Stage) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sessions[id] != st {
			return
		}
		switch s {
		case stage.Generation:
			st.say(m.script.Progress.Generating, true)
		case stage.Refinement:
			if err := m.advance(st, stage.Succeeded); err != nil {
				m.logger.Error("entering refinement", "session_id", id, "error", err)
			}
			st.say(m.script.Progress.Refining, true)
		}
		if err := m.commit(st); err != nil {
			m.logger.Error("saving progress", "session_id", id, "error", err)
		}
	}

	out, genErr := m.designer.Generate(ctx, rec, progress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != st {
		return fmt.Errorf("%w: %s deleted during generation", ErrNotFound, id)
	}

	if genErr != nil {
		at := st.stage
		var se *pipeline.StageError
		if errors.As(genErr, &se) {
			at = se.Stage
		}
		m.logger.Warn("generation failed", "session_id", id, "stage", st.stage, "error", genErr)
		if err := m.fail(st, m.failureNotice(at, genErr)); err != nil {
			return err
		}
		return genErr
	}

	st.record = st.record.WithPrompt(out.Prompt).WithFloorPlan(out.FloorPlan)
	st.markImage(storage.ImageFloorPlan)
	if err := m.advance(st, stage.Succeeded); err != nil {
		return err
	}
	st.say(m.script.Progress.Floorplan, true)
	return m.commit(st)
}

func (m *Manager) runInterior(ctx context.Context, id string) error {
	st, err := m.claim(id, stage.Interior)
	if err != nil {
		return err
	}
	m.mu.Lock()
	rec := st.record
	m.mu.Unlock()

	img, renderErr := m.designer.RenderInterior(ctx, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != st {
		return fmt.Errorf("%w: %s deleted during rendering", ErrNotFound, id)
	}

	if renderErr != nil {
		m.logger.Warn("interior rendering failed", "session_id", id, "error", renderErr)
		if err := m.fail(st, m.failureNotice(stage.Interior, renderErr)); err != nil {
			return err
		}
		return renderErr
	}

	st.record = st.record.WithInterior(img)
	st.markImage(storage.ImageInterior)
	if err := m.advance(st, stage.Succeeded); err != nil {
		return err
	}
	st.say(m.script.Progress.Done, true)
	return m.commit(st)
}

// fail moves st out of its pipeline stage and explains why in a turn and
// the notice. Callers hold m.mu.
func (m *Manager) fail(st *state, msg string) error {
	if err := m.advance(st, stage.Failed); err != nil {
		return err
	}
	st.say(msg, true)
	st.notice = msg
	return m.commit(st)
}

// failureNotice picks the explanation for a pipeline failure at stage at.
func (m *Manager) failureNotice(at stage.Stage, err error) string {
	f := m.script.Failures
	switch {
	case at == stage.Interior:
		return f.Interior
	case proxy.IsRateLimit(err) && f.RateLimited != "":
		return f.RateLimited
	case at == stage.Refinement:
		return f.Refinement
	default:
		return f.Generation
	}
}

// settle fails the session of a job that panicked, from whichever pipeline
// stage it reached. Sessions at a stage without a Failed transition are
// left alone.
func (m *Manager) settle(id string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok || !stage.Defined(st.stage, stage.Failed) {
		return
	}
	m.logger.Error("pipeline job crashed", "session_id", id, "stage", st.stage, "error", cause)
	if err := m.fail(st, m.failureNotice(st.stage, cause)); err != nil {
		m.logger.Error("settling crashed job", "session_id", id, "error", err)
	}
}

// Recover settles sessions left mid-pipeline by a previous process:
// generation and refinement fall back to confirmation, interior rendering
// settles to done. Queued jobs from that process are abandoned. It returns
// the number of sessions recovered.
func (m *Manager) Recover(_ context.Context) (int, error) {
	if n, err := m.store.AbandonUnfinishedJobs("interrupted by restart"); err != nil {
		return 0, fmt.Errorf("abandoning jobs: %w", err)
	} else if n > 0 {
		m.logger.Info("abandoned unfinished jobs", "count", n)
	}

	rows, err := m.store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	recovered := 0
	for _, row := range rows {
		if !stage.IsPipeline(stage.Stage(row.Stage)) {
			continue
		}
		st, err := m.load(row.ID)
		if err != nil {
			m.logger.Error("recovering session", "session_id", row.ID, "error", err)
			continue
		}
		msg := m.script.Failures.Interrupted
		if st.stage == stage.Interior {
			msg = m.script.Failures.Interior
		}
		if err := m.fail(st, msg); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}
