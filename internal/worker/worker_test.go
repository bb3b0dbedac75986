package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/archai/internal/storage"
)

type mockRunner struct {
	mu    sync.Mutex
	ran   []storage.Job
	runFn func(job storage.Job) error
}

func (m *mockRunner) RunJob(_ context.Context, job storage.Job) error {
	m.mu.Lock()
	m.ran = append(m.ran, job)
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(job)
	}
	return nil
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ran)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, id, typ string) {
	t.Helper()
	job := storage.Job{
		ID:          id,
		Type:        typ,
		SessionID:   "session-" + id,
		PayloadJSON: fmt.Sprintf(`{"session_id":%q}`, "session-"+id),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, id string) string {
	t.Helper()
	j, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob %s: %v", id, err)
	}
	return j.Status
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "j-1", "generate_design")

	runner := &mockRunner{}
	w := NewWorker(store, runner, []string{"generate_design"}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if runner.count() != 1 || runner.ran[0].SessionID != "session-j-1" {
		t.Fatalf("ran = %+v", runner.ran)
	}
	if got := jobStatus(t, store, "j-1"); got != storage.JobCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestWorker_IdleWhenQueueEmpty(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockRunner{}, []string{"generate_design"}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_FailureIsNotRetried(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "j-fail", "generate_design")

	runner := &mockRunner{runFn: func(storage.Job) error { return errors.New("no media") }}
	w := NewWorker(store, runner, []string{"generate_design"}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if got := jobStatus(t, store, "j-fail"); got != storage.JobFailed {
		t.Errorf("status = %q, want failed", got)
	}

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork || runner.count() != 1 {
		t.Errorf("failed job was picked up again (runs = %d)", runner.count())
	}
}

func TestWorker_TypeFilter(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "j-other", "something_else")
	enqueueTestJob(t, store, "j-interior", "render_interior")

	runner := &mockRunner{}
	w := NewWorker(store, runner, []string{"generate_design", "render_interior"}, 0)

	for i := 0; i < 2; i++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if runner.count() != 1 || runner.ran[0].Type != "render_interior" {
		t.Errorf("ran = %+v", runner.ran)
	}
	if got := jobStatus(t, store, "j-other"); got != storage.JobPending {
		t.Errorf("foreign job status = %q", got)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	const total = 5
	for i := 0; i < total; i++ {
		enqueueTestJob(t, store, fmt.Sprintf("j-%d", i), "generate_design")
	}

	runner := &mockRunner{}
	w := NewWorker(store, runner, []string{"generate_design"}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for runner.count() < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after %d/%d jobs", runner.count(), total)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestWorker_PanicFailsJob(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "j-panic", "generate_design")

	runner := &mockRunner{runFn: func(storage.Job) error { panic("nil plan") }}
	w := NewWorker(store, runner, []string{"generate_design"}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}
	j, err := store.GetJob("j-panic")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != storage.JobFailed || j.LastError != "panic: nil plan" {
		t.Errorf("job = %s %q", j.Status, j.LastError)
	}
}
