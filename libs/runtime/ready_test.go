package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		checks []ReadyCheck
		want   int
	}{
		{name: "no checks", want: http.StatusOK},
		{name: "healthy", checks: []ReadyCheck{{Name: "db", Check: func(context.Context) error { return nil }}}, want: http.StatusOK},
		{name: "nil check skipped", checks: []ReadyCheck{{Name: "kafka"}}, want: http.StatusOK},
		{
			name: "failing",
			checks: []ReadyCheck{
				{Name: "db", Check: func(context.Context) error { return nil }},
				{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
			},
			want: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewBaseMuxWithReady(tt.checks...)
			rw := httptest.NewRecorder()
			mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rw.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rw.Code)
			}
			var report readyReport
			if err := json.NewDecoder(rw.Body).Decode(&report); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.want != http.StatusOK && report.Checks["redis"] != "connection refused" {
				t.Fatalf("expected redis failure in report, got %+v", report)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" {
		t.Fatal("expected debug level")
	}
	if ParseLevel("nonsense").String() != "INFO" {
		t.Fatal("expected info fallback")
	}
}
