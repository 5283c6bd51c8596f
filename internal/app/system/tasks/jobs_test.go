package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/tasks"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil/memstore"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestHistoryPruneJob(t *testing.T) {
	cards := memstore.NewCards()
	n := &memstore.Notifier{}
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	holder := primitive.NewObjectID()

	c := testutil.NewCard(1, "g1")
	c.AssignedHistory = []models.Assignment{{UserID: holder, Date: old}, {UserID: holder, Date: recent}}
	cards.Put(c)

	job := tasks.HistoryPruneJob(cards, n, zap.NewNop(), 24*time.Hour, 0)
	if job.Name != "history-prune" || job.Interval != tasks.DefaultHistoryPruneInterval {
		t.Fatalf("unexpected job %q every %v", job.Name, job.Interval)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := cards.Get(c.ID)
	if len(got.AssignedHistory) != 1 || !got.AssignedHistory[0].Date.Equal(recent) {
		t.Errorf("history = %+v, want only the recent entry", got.AssignedHistory)
	}
	if n.Count() != 1 {
		t.Errorf("publishes = %d, want 1", n.Count())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n.Count() != 1 {
		t.Errorf("a run with nothing to prune published")
	}
}

func TestReferenceReconcileJob(t *testing.T) {
	addrs := memstore.NewAddresses()
	cards := memstore.NewCards()
	users := memstore.NewUsers()
	n := &memstore.Notifier{}

	live := testutil.NewAddress("live", "1", "g1", primitive.NewObjectID())
	addrs.Put(live)
	gone := primitive.NewObjectID()

	c := testutil.NewCard(1, "g1", live.ID, gone)
	cards.Put(c)
	u := testutil.NewUser("ana", "ana@example.com", "g1")
	ref := models.CardRef{CardID: c.ID, Addresses: []primitive.ObjectID{gone, live.ID}}
	u.MyCards = []models.CardRef{ref}
	u.MyTotalCards = []models.CardRef{ref}
	users.Put(u)

	job := tasks.ReferenceReconcileJob(addrs, cards, users, n, zap.NewNop(), time.Minute)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	gotCard, _ := cards.Get(c.ID)
	if len(gotCard.Street) != 1 || gotCard.Street[0] != live.ID {
		t.Errorf("card street = %v, want only %v", gotCard.Street, live.ID)
	}
	gotUser, _ := users.Get(u.ID)
	for _, refs := range [][]models.CardRef{gotUser.MyCards, gotUser.MyTotalCards} {
		if len(refs[0].Addresses) != 1 || refs[0].Addresses[0] != live.ID {
			t.Errorf("user ref addresses = %v, want only %v", refs[0].Addresses, live.ID)
		}
	}
	if n.Count() != 1 {
		t.Errorf("publishes = %d, want 1", n.Count())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n.Count() != 1 {
		t.Errorf("a clean run published")
	}
}

func TestReferenceReconcileJob_ReturnedCardHistory(t *testing.T) {
	users := memstore.NewUsers()
	n := &memstore.Notifier{}

	gone := primitive.NewObjectID()
	u := testutil.NewUser("ana", "ana@example.com", "g1")
	u.MyCards = []models.CardRef{}
	u.MyTotalCards = []models.CardRef{{CardID: primitive.NewObjectID(), Addresses: []primitive.ObjectID{gone}}}
	users.Put(u)

	job := tasks.ReferenceReconcileJob(memstore.NewAddresses(), memstore.NewCards(), users, n, zap.NewNop(), time.Minute)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	gotUser, _ := users.Get(u.ID)
	if len(gotUser.MyTotalCards[0].Addresses) != 0 {
		t.Errorf("my_total_cards addresses = %v, want dangling id pulled", gotUser.MyTotalCards[0].Addresses)
	}
	if n.Count() != 0 {
		t.Errorf("publishes = %d, want 0 when no card changed", n.Count())
	}
}

type failingRefs struct{}

func (failingRefs) ReferencedAddressIDs(context.Context) ([]primitive.ObjectID, error) {
	return nil, errors.New("boom")
}

func (failingRefs) PullAddresses(context.Context, []primitive.ObjectID) (int64, error) {
	return 0, nil
}

func TestReferenceReconcileJob_CollectError(t *testing.T) {
	job := tasks.ReferenceReconcileJob(memstore.NewAddresses(), failingRefs{}, memstore.NewUsers(),
		&memstore.Notifier{}, zap.NewNop(), 0)
	if job.Interval != tasks.DefaultReconcileInterval {
		t.Errorf("interval = %v, want default", job.Interval)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}
