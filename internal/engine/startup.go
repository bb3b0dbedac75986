package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that the Engine is reachable and the chat model is
// available. A missing model is pulled with progress written to w, then
// warmed up so the first extraction does not pay the cold-load penalty.
func EnsureReady(ctx context.Context, e Engine, chatModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference engine is not running; start it (e.g. ollama serve) and retry")
	}
	if chatModel == "" {
		return nil
	}

	if e.HasModel(ctx, chatModel) {
		fmt.Fprintf(w, "model %s: ready\n", chatModel)
	} else {
		fmt.Fprintf(w, "model %s: pulling...\n", chatModel)
		err := e.PullModel(ctx, chatModel, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if errors.Is(err, ErrPullUnsupported) {
			return fmt.Errorf("model %s is not available on the server", chatModel)
		}
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", chatModel, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", chatModel)
	}

	fmt.Fprintf(w, "model %s: warming up...\n", chatModel)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := e.Chat(warmCtx, chatModel, []Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", chatModel, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", chatModel)
	}
	return nil
}
