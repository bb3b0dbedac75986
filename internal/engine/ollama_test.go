package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/archai/internal/ollama"
	"github.com/kalambet/archai/internal/requirements"
)

// ollamaDaemon fakes the handful of Ollama endpoints the engine touches.
// The last /api/chat body is stored in *chatBody when non-nil.
func ollamaDaemon(t *testing.T, chatBody *map[string]any) *OllamaEngine {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llava:latest"},{"name":"qwen2.5:7b"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if chatBody != nil {
			json.NewDecoder(r.Body).Decode(chatBody)
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"hello from ollama"}}`)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{\"status\":\"downloading\",\"total\":1000,\"completed\":500}\n")
		io.WriteString(w, "{\"status\":\"downloading\",\"total\":1000,\"completed\":1000}\n")
		io.WriteString(w, "{\"status\":\"success\"}\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewOllamaEngine(srv.URL)
}

func TestOllamaEngine_Chat(t *testing.T) {
	var body map[string]any
	e := ollamaDaemon(t, &body)

	out, err := e.Chat(context.Background(), "llava", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello from ollama" {
		t.Errorf("out = %q", out)
	}
	if _, ok := body["format"]; ok {
		t.Errorf("format sent without a schema: %v", body)
	}
}

func TestOllamaEngine_ChatMissingModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model \"qwen2.5\" not found, try pulling it first"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewOllamaEngine(srv.URL).Chat(context.Background(), "qwen2.5", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "ollama pull qwen2.5") {
		t.Errorf("err = %v, want a pull hint", err)
	}
	if !ollama.IsNotFound(err) {
		t.Errorf("status lost: %v", err)
	}
}

func TestOllamaEngine_ChatImagesAndSchema(t *testing.T) {
	var body map[string]any
	e := ollamaDaemon(t, &body)

	_, err := e.Chat(context.Background(), "llava", []Message{{
		Role:    "user",
		Content: "critique",
		Images:  []requirements.Image{{MIMEType: "image/png", Data: []byte("hello")}},
	}}, &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"intent": {Type: "string", Enum: []string{"affirm"}},
			"requirements": {Type: "object", Properties: map[string]SchemaProperty{
				"style": {Type: "string"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	msg := body["messages"].([]any)[0].(map[string]any)
	if imgs, _ := msg["images"].([]any); len(imgs) != 1 || imgs[0] != "aGVsbG8=" {
		t.Errorf("images = %v", msg["images"])
	}
	props := body["format"].(map[string]any)["properties"].(map[string]any)
	if enum, _ := props["intent"].(map[string]any)["enum"].([]any); len(enum) != 1 || enum[0] != "affirm" {
		t.Errorf("intent = %v", props["intent"])
	}
	nested, _ := props["requirements"].(map[string]any)["properties"].(map[string]any)
	if _, ok := nested["style"]; !ok {
		t.Errorf("nested property lost: %v", props["requirements"])
	}
}

func TestOllamaEngine_Models(t *testing.T) {
	e := ollamaDaemon(t, nil)
	ctx := context.Background()

	if !e.IsRunning(ctx) {
		t.Error("IsRunning = false")
	}
	models, err := e.ListModels(ctx)
	if err != nil || len(models) != 2 {
		t.Errorf("ListModels = %v, %v", models, err)
	}
	if !e.HasModel(ctx, "llava") || e.HasModel(ctx, "llama3") {
		t.Error("HasModel matched the wrong set")
	}

	down := NewOllamaEngine("http://127.0.0.1:1")
	if down.IsRunning(ctx) {
		t.Error("IsRunning = true for an unreachable daemon")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	e := ollamaDaemon(t, nil)

	var last PullProgress
	n := 0
	err := e.PullModel(context.Background(), "llava", func(p PullProgress) {
		n++
		last = p
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 3 || last.Status != "success" {
		t.Errorf("saw %d updates, last %+v", n, last)
	}
	if err := e.PullModel(context.Background(), "llava", nil); err != nil {
		t.Errorf("PullModel without callback: %v", err)
	}
}
