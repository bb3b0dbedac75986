package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	upgrade := func(r *http.Request) {
		r.Header.Set("Connection", "Upgrade")
		r.Header.Set("Upgrade", "websocket")
	}
	tests := []struct {
		name   string
		target string
		auth   string
		setup  func(*http.Request)
		want   int
	}{
		{name: "header", target: "/x", auth: "Bearer s3cret", want: http.StatusNoContent},
		{name: "lowercase scheme", target: "/x", auth: "bearer s3cret", want: http.StatusNoContent},
		{name: "wrong token", target: "/x", auth: "Bearer nope", want: http.StatusUnauthorized},
		{name: "basic scheme", target: "/x", auth: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "missing", target: "/x", want: http.StatusUnauthorized},
		{name: "query on plain request", target: "/x?access_token=s3cret", want: http.StatusUnauthorized},
		{name: "query on upgrade", target: "/x?access_token=s3cret", setup: upgrade, want: http.StatusNoContent},
		{name: "wrong query on upgrade", target: "/x?access_token=nope", setup: upgrade, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.setup != nil {
				tt.setup(req)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
