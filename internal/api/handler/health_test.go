package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		store  Pinger
		path   string
		handle func(*HealthHandler) http.HandlerFunc
		want   int
	}{
		{"healthz ignores store", pingerFunc(func(context.Context) error { return errors.New("down") }), "/healthz",
			func(h *HealthHandler) http.HandlerFunc { return h.Healthz }, http.StatusOK},
		{"readyz ok", pingerFunc(func(context.Context) error { return nil }), "/readyz",
			func(h *HealthHandler) http.HandlerFunc { return h.Readyz }, http.StatusOK},
		{"readyz store down", pingerFunc(func(context.Context) error { return errors.New("down") }), "/readyz",
			func(h *HealthHandler) http.HandlerFunc { return h.Readyz }, http.StatusServiceUnavailable},
		{"readyz without store", nil, "/readyz",
			func(h *HealthHandler) http.HandlerFunc { return h.Readyz }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store)
			w := httptest.NewRecorder()
			tt.handle(h)(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
