package auditlog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/store/audit"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memStore struct {
	events []audit.Event
	err    error
}

func (m *memStore) Log(_ context.Context, e audit.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx := context.Background()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.LoginSuccess(ctx, primitive.NewObjectID(), "g1")
	logger.CardCreated(ctx, testutil.AdminPrincipal("g1"), primitive.NewObjectID(), 1)
	logger.Logout(ctx, nil)
}

func TestLogger_Destinations(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantDB  int
		wantLog int
	}{
		{"all", auditlog.ModeAll, 1, 1},
		{"db", auditlog.ModeDB, 1, 0},
		{"log", auditlog.ModeLog, 0, 1},
		{"off", auditlog.ModeOff, 0, 0},
		{"unset defaults to all", "", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			store := &memStore{}
			logger := auditlog.New(store, zap.New(core), auditlog.Config{Auth: tt.mode, Changes: tt.mode})

			logger.CardAssigned(context.Background(), testutil.CardManagerPrincipal("g1"), primitive.NewObjectID(), primitive.NewObjectID())

			if len(store.events) != tt.wantDB {
				t.Errorf("stored %d events, want %d", len(store.events), tt.wantDB)
			}
			if logs.Len() != tt.wantLog {
				t.Errorf("logged %d entries, want %d", logs.Len(), tt.wantLog)
			}
		})
	}
}

func TestLogger_CategorySettings(t *testing.T) {
	store := &memStore{}
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeOff, Changes: auditlog.ModeDB})
	ctx := context.Background()

	logger.LoginFailedUserNotFound(ctx, "nobody@example.com")
	logger.CardDeleted(ctx, testutil.AdminPrincipal("g1"), primitive.NewObjectID(), 3)

	if len(store.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.events))
	}
	e := store.events[0]
	if e.Category != audit.CategoryCard || e.EventType != audit.EventCardDeleted {
		t.Errorf("unexpected event %s/%s", e.Category, e.EventType)
	}
	if e.Group != "g1" || e.ActorID == nil || e.Details["number"] != "3" {
		t.Errorf("event fields not populated: %+v", e)
	}
}

func TestLogger_RequestInfoMiddleware(t *testing.T) {
	store := &memStore{}
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeDB})

	h := auditlog.RequestInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LoginSuccess(r.Context(), primitive.NewObjectID(), "g1")
	}))
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "TestBrowser/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(store.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.events))
	}
	if store.events[0].IP != "203.0.113.7" || store.events[0].UserAgent != "TestBrowser/1.0" {
		t.Errorf("request info not captured: ip=%q ua=%q", store.events[0].IP, store.events[0].UserAgent)
	}
}

func TestLogger_StoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := auditlog.New(&memStore{err: errors.New("down")}, zap.New(core), auditlog.Config{Changes: auditlog.ModeDB})

	logger.UserDeleted(context.Background(), testutil.AdminPrincipal("g1"), primitive.NewObjectID(), 0)

	if logs.FilterMessage("failed to store audit event").Len() != 1 {
		t.Error("expected store failure to be logged")
	}
}
