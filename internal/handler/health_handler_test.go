package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := CheckerFunc(func(context.Context) error { return nil })
	down := CheckerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Checker
		wantStatus int
		want       HealthResponse
	}{
		{
			name:       "healthy",
			checks:     map[string]Checker{"database": ok},
			wantStatus: http.StatusOK,
			want:       HealthResponse{Status: "ok", Checks: map[string]string{"database": "ok"}},
		},
		{
			name:       "degraded",
			checks:     map[string]Checker{"database": down},
			wantStatus: http.StatusServiceUnavailable,
			want:       HealthResponse{Status: "degraded", Checks: map[string]string{"database": "connection refused"}},
		},
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			want:       HealthResponse{Status: "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks)
			rec := serve(newTestEcho(), h.Health, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
