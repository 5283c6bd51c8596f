package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/timeouts"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoPinger is satisfied by *mongo.Client.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Mongo MongoPinger
	Redis RedisPinger // nil when the relay is disabled
	Log   *zap.Logger
}

// NewHandler constructs a health Handler. redis may be nil.
func NewHandler(mongo MongoPinger, redis RedisPinger, logger *zap.Logger) *Handler {
	return &Handler{
		Mongo: mongo,
		Redis: redis,
		Log:   logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Relay    string `json:"relay"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "relay":"connected" }
//
// relay is "disabled" when no Redis relay is configured. A Redis failure
// degrades the status but keeps 200 since local subscribers still work.
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Relay:    "disabled",
	}

	if err := h.Mongo.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			h.Log.Warn("health-check: redis ping failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Relay = "disconnected"
			resp.Error = err.Error()
		} else {
			resp.Relay = "connected"
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
