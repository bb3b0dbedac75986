package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/archai/internal/session"
	"github.com/kalambet/archai/internal/stage"
)

type wireEvent struct {
	Type    string       `json:"type"`
	Session wireSnapshot `json:"session"`
}

func dialEvents(t *testing.T, srv *httptest.Server, id, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/events"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func TestEvents_StreamsUpdates(t *testing.T) {
	app := setupApp(t, nil)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()
	id := app.create(t).ID

	conn, _, err := dialEvents(t, srv, id, testToken)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	first := readEvent(t, conn)
	if first.Type != session.EventUpdated || first.Session.ID != id || first.Session.Stage != string(stage.Introduction) {
		t.Fatalf("first event = %+v", first)
	}

	app.do(t, http.MethodPost, "/sessions/"+id+"/messages", `{"text":"a lakeside cabin"}`)

	// The user turn and the reply are committed separately.
	for {
		ev := readEvent(t, conn)
		if ev.Session.Stage == string(stage.SquareFootage) {
			break
		}
	}

	app.do(t, http.MethodDelete, "/sessions/"+id, "")
	if ev := readEvent(t, conn); ev.Type != session.EventDeleted {
		t.Errorf("event = %s, want %s", ev.Type, session.EventDeleted)
	}
}

func TestEvents_RequiresAuthAndSession(t *testing.T) {
	app := setupApp(t, nil)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()
	id := app.create(t).ID

	if _, resp, err := dialEvents(t, srv, id, ""); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated dial: err=%v resp=%v", err, resp)
	}
	if _, resp, err := dialEvents(t, srv, "missing", testToken); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session dial: err=%v resp=%v", err, resp)
	}
}
