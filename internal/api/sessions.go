package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/session"
	"github.com/kalambet/archai/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Sessions is the session surface the API exposes. *session.Manager
// satisfies it.
type Sessions interface {
	Create(ctx context.Context) (session.Snapshot, error)
	Get(ctx context.Context, id string) (session.Snapshot, error)
	List(ctx context.Context) ([]session.Summary, error)
	Delete(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id, text string) (session.Snapshot, error)
	UploadInspiration(ctx context.Context, id string, img requirements.Image) (session.Snapshot, error)
	EditRequirements(ctx context.Context, id string, delta requirements.Delta) (session.Snapshot, error)
	ChooseInterior(ctx context.Context, id string, render bool) (session.Snapshot, error)
	DismissNotice(ctx context.Context, id string) (session.Snapshot, error)
	Explain(ctx context.Context, id string) (string, error)
	Subscribe(ctx context.Context, id string) (<-chan session.Event, func(), error)
}

type AppDeps struct {
	Sessions Sessions
	Token    string
	Logger   *slog.Logger
}

// NewAppHandler returns the HTTP API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", handleGetSession(deps))
			r.Delete("/", handleDeleteSession(deps))
			r.Post("/messages", handleSendMessage(deps))
			r.Post("/inspiration", handleUploadInspiration(deps))
			r.Patch("/requirements", handleEditRequirements(deps))
			r.Post("/interior", handleChooseInterior(deps))
			r.Delete("/notice", handleDismissNotice(deps))
			r.Get("/prompt", handleGetPrompt(deps))
			r.Get("/images/{kind}", handleGetImage(deps))
			r.Get("/rationale", handleRationale(deps))
			r.Get("/events", handleEvents(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Sessions.Create(r.Context())
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	}
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Sessions.List(r.Context())
		if err != nil {
			sessionError(w, err)
			return
		}
		if list == nil {
			list = []session.Summary{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

func handleSendMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id := chi.URLParam(r, "id")
		snap, err := deps.Sessions.SendMessage(r.Context(), id, req.Text)
		if err != nil {
			deps.Logger.Debug("message rejected", "session_id", id, "error", err)
			sessionErrorWithSnapshot(w, err, snap)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleUploadInspiration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, session.MaxInspirationBytes+maxRequestBodySize)
		if err := r.ParseMultipartForm(session.MaxInspirationBytes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("image")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, session.MaxInspirationBytes+1))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading image: %v", err)
			return
		}
		mime := header.Header.Get("Content-Type")
		if mime == "" || mime == "application/octet-stream" {
			mime = http.DetectContentType(data)
		}

		snap, err := deps.Sessions.UploadInspiration(r.Context(), chi.URLParam(r, "id"), requirements.Image{MIMEType: mime, Data: data})
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleEditRequirements(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		delta := make(requirements.Delta, len(fields))
		for key, value := range fields {
			f, ok := requirements.ParseField(key)
			if !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown requirement field %q", key)
				return
			}
			delta[f] = value
		}

		snap, err := deps.Sessions.EditRequirements(r.Context(), chi.URLParam(r, "id"), delta)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type interiorRequest struct {
	Render *bool `json:"render"`
}

func handleChooseInterior(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req interiorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Render == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "render is required")
			return
		}

		snap, err := deps.Sessions.ChooseInterior(r.Context(), chi.URLParam(r, "id"), *req.Render)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleDismissNotice(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Sessions.DismissNotice(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleGetPrompt(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			sessionError(w, err)
			return
		}
		prompt, ok := snap.Record.Prompt().Value()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no architectural prompt yet")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(prompt))
	}
}

func handleGetImage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			sessionError(w, err)
			return
		}

		var img *requirements.Image
		switch kind := strings.ToLower(chi.URLParam(r, "kind")); kind {
		case storage.ImageInspiration:
			img = snap.Record.Inspiration()
		case storage.ImageFloorPlan:
			img = snap.Record.FloorPlan()
		case storage.ImageInterior:
			img = snap.Record.Interior()
		default:
			httpError(w, http.StatusNotFound, "not_found", "unknown image kind %q", kind)
			return
		}
		if img == nil {
			httpError(w, http.StatusNotFound, "not_found", "image not available")
			return
		}

		w.Header().Set("Content-Type", img.MIMEType)
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(img.Data)
	}
}

func handleRationale(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := deps.Sessions.Explain(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			code, typ := classify(err)
			if code == http.StatusInternalServerError {
				code = http.StatusBadGateway
			}
			httpError(w, code, typ, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"explanation": text})
	}
}
