package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	httpserver "staybook/internal/adapters/http_server"
)

func TestLogger_EmitsRequestIDAndBytes(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httpserver.Logger(l))
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}

	var line struct {
		RequestID string `json:"request_id"`
		Route     string `json:"route"`
		Status    int    `json:"status"`
		Bytes     int    `json:"bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line.RequestID == "" {
		t.Fatalf("request id missing from log line: %s", buf.String())
	}
	if line.Route != "/ping" || line.Status != http.StatusOK {
		t.Fatalf("unexpected log line: %s", buf.String())
	}
	if line.Bytes != len("pong") {
		t.Fatalf("expected %d bytes logged, got %d", len("pong"), line.Bytes)
	}
}
