package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kalambet/archai/internal/session"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = eventPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// Clients authenticate with the bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams session events over a websocket. The first message
// is the current snapshot; the stream ends when the session is deleted or
// the client goes away.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap, err := deps.Sessions.Get(r.Context(), id)
		if err != nil {
			sessionError(w, err)
			return
		}
		events, unsubscribe, err := deps.Sessions.Subscribe(r.Context(), id)
		if err != nil {
			sessionError(w, err)
			return
		}
		defer unsubscribe()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
			return
		}
		defer conn.Close()

		// The stream is one-way; reading only services control frames.
		closed := make(chan struct{})
		conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev session.Event) bool {
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				deps.Logger.Debug("websocket write failed", "session_id", id, "error", err)
				return false
			}
			return true
		}

		if !send(session.Event{Type: session.EventUpdated, Session: snap}) {
			return
		}

		ping := time.NewTicker(eventPingPeriod)
		defer ping.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok || !send(ev) {
					return
				}
				if ev.Type == session.EventDeleted {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"),
						time.Now().Add(eventWriteWait))
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
