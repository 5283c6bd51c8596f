package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/health"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type fakeMongo struct{ err error }

func (f fakeMongo) Ping(context.Context, *readpref.ReadPref) error { return f.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

type response struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Relay    string `json:"relay"`
	Message  string `json:"message"`
}

func serve(t *testing.T, h *health.Handler) (int, response) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec.Code, out
}

func TestServe(t *testing.T) {
	tests := []struct {
		name     string
		mongo    error
		redis    health.RedisPinger
		code     int
		status   string
		database string
		relay    string
	}{
		{"all up", nil, fakeRedis{}, http.StatusOK, "ok", "connected", "connected"},
		{"relay disabled", nil, nil, http.StatusOK, "ok", "connected", "disabled"},
		{"relay down", nil, fakeRedis{err: errors.New("refused")}, http.StatusOK, "degraded", "connected", "disconnected"},
		{"database down", errors.New("no reachable servers"), fakeRedis{}, http.StatusServiceUnavailable, "error", "disconnected", "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(fakeMongo{err: tt.mongo}, tt.redis, zap.NewNop())
			code, got := serve(t, h)
			if code != tt.code {
				t.Errorf("status code: got %d, want %d", code, tt.code)
			}
			if got.Status != tt.status {
				t.Errorf("status: got %q, want %q", got.Status, tt.status)
			}
			if got.Database != tt.database {
				t.Errorf("database: got %q, want %q", got.Database, tt.database)
			}
			if got.Relay != tt.relay {
				t.Errorf("relay: got %q, want %q", got.Relay, tt.relay)
			}
		})
	}
}

func TestServe_DatabaseConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := health.NewHandler(db.Client(), nil, zap.NewNop())

	code, got := serve(t, h)
	if code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, code)
	}
	if got.Database != "connected" {
		t.Errorf("database: got %q, want %q", got.Database, "connected")
	}
}
