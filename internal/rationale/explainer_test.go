package rationale

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
)

type mockEngine struct {
	response string
	err      error
	calls    int
	messages []engine.Message
}

func (m *mockEngine) Chat(_ context.Context, _ string, msgs []engine.Message, _ *engine.Schema) (string, error) {
	m.calls++
	m.messages = msgs
	return m.response, m.err
}
func (m *mockEngine) IsRunning(context.Context) bool { return true }
func (m *mockEngine) ListModels(context.Context) ([]string, error) { return nil, nil }
func (m *mockEngine) HasModel(context.Context, string) bool { return true }
func (m *mockEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

func fullRecord(t *testing.T) requirements.Record {
	t.Helper()
	d := requirements.Delta{}
	for _, f := range requirements.CollectedFields {
		d[f] = "x"
	}
	d[requirements.Rooms] = "3 bedrooms, 2 baths"
	rec, err := requirements.Record{}.Apply(d)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestExplain(t *testing.T) {
	m := &mockEngine{response: `{"explanation":"  Splitting bedrooms from living space improves privacy.  "}`}
	got, err := NewExplainer(m, "qwen2.5").Explain(context.Background(), fullRecord(t))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got != "Splitting bedrooms from living space improves privacy." {
		t.Errorf("explanation = %q", got)
	}
	if !strings.Contains(m.messages[1].Content, "Rooms: 3 bedrooms, 2 baths") {
		t.Errorf("choices not sent: %q", m.messages[1].Content)
	}
}

func TestExplain_Incomplete(t *testing.T) {
	m := &mockEngine{}
	_, err := NewExplainer(m, "qwen2.5").Explain(context.Background(), requirements.Record{})
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("err = %v, want ErrIncomplete", err)
	}
	if m.calls != 0 {
		t.Error("model called for an incomplete record")
	}
}

func TestExplain_Errors(t *testing.T) {
	for _, m := range []*mockEngine{
		{err: errors.New("connection refused")},
		{response: "not json"},
		{response: `{"explanation":""}`},
	} {
		if _, err := NewExplainer(m, "qwen2.5").Explain(context.Background(), fullRecord(t)); err == nil {
			t.Errorf("response %q, err %v: expected error", m.response, m.err)
		}
	}
}
