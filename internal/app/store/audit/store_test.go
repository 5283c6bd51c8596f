package audit_test

import (
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/store/audit"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log_AutoFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	before := time.Now().UTC().Add(-time.Second)
	if err := store.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		IP:        "192.168.1.1",
		Success:   true,
	}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.Before(before) {
		t.Errorf("timestamp %v not set", events[0].Timestamp)
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	actor := primitive.NewObjectID()
	events := []audit.Event{
		{Group: "g1", Category: audit.CategoryCard, EventType: audit.EventCardCreated, ActorID: &actor, Success: true},
		{Group: "g1", Category: audit.CategoryCard, EventType: audit.EventCardAssigned, ActorID: &actor, Success: true},
		{Group: "g2", Category: audit.CategoryAddress, EventType: audit.EventAddressDeleted, Success: true},
		{Category: audit.CategoryAuth, EventType: audit.EventLoginFailedWrongPassword},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int64
	}{
		{"all", audit.QueryFilter{}, 4},
		{"group", audit.QueryFilter{Group: "g1"}, 2},
		{"category", audit.QueryFilter{Category: audit.CategoryAddress}, 1},
		{"event type", audit.QueryFilter{EventType: audit.EventCardAssigned}, 1},
		{"actor", audit.QueryFilter{ActorID: &actor}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.CountByFilter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountByFilter failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("CountByFilter = %d, want %d", n, tt.want)
			}
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if int64(len(got)) != tt.want {
				t.Errorf("Query returned %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestStore_Query_Offset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 3; i++ {
		_ = store.Log(ctx, audit.Event{Category: audit.CategoryCard, EventType: audit.EventCardCreated, Success: true})
	}
	got, err := store.Query(ctx, audit.QueryFilter{Offset: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 event after offset, got %d", len(got))
	}
}
