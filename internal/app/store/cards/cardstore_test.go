package cardstore_test

import (
	"errors"
	"testing"
	"time"

	cardstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/cards"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Insert_DuplicateNumber(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := cardstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Insert(ctx, testutil.NewCard(1, "g1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	_, err := store.Insert(ctx, testutil.NewCard(1, "g2"))
	if !errors.Is(err, cardstore.ErrDuplicateNumber) {
		t.Errorf("got %v, want ErrDuplicateNumber", err)
	}

	nums, err := store.Numbers(ctx)
	if err != nil {
		t.Fatalf("Numbers failed: %v", err)
	}
	if len(nums) != 1 || nums[0] != 1 {
		t.Errorf("Numbers = %v, want [1]", nums)
	}
}

func TestStore_AssignReturn(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cardstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	card := fx.CreateCard(ctx, 1, "g1")
	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ok, err := store.Assign(ctx, card.ID, userA, now)
	if err != nil || !ok {
		t.Fatalf("Assign = %v, %v; want true", ok, err)
	}
	// A second assignment loses the conditional update.
	ok, err = store.Assign(ctx, card.ID, userB, now)
	if err != nil || ok {
		t.Fatalf("second Assign = %v, %v; want false", ok, err)
	}

	got, _ := store.GetByID(ctx, card.ID)
	if !got.IsAssigned() || got.EndDate != nil {
		t.Errorf("assigned card: start=%v end=%v", got.StartDate, got.EndDate)
	}
	if h, _ := got.Holder(); h != userA {
		t.Errorf("holder = %s, want %s", h.Hex(), userA.Hex())
	}

	held, _ := store.HeldBy(ctx, userA)
	if len(held) != 1 {
		t.Errorf("HeldBy = %d cards, want 1", len(held))
	}

	// Only the holder can return it.
	if ok, _ := store.Return(ctx, card.ID, userB, now); ok {
		t.Error("Return by non-holder should not match")
	}
	ok, err = store.Return(ctx, card.ID, userA, now)
	if err != nil || !ok {
		t.Fatalf("Return = %v, %v; want true", ok, err)
	}

	got, _ = store.GetByID(ctx, card.ID)
	if got.IsAssigned() || got.EndDate == nil || len(got.UsersAssigned) != 0 {
		t.Errorf("returned card state wrong: %+v", got)
	}
	if len(got.AssignedHistory) != 1 || got.AssignedHistory[0].UserID != userA {
		t.Errorf("history = %+v", got.AssignedHistory)
	}
}

func TestStore_SetStreet_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := cardstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := store.SetStreet(ctx, primitive.NewObjectID(), nil)
	if !errors.Is(err, cardstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStore_PullAddressesAndReferences(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	store := cardstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a1, a2 := primitive.NewObjectID(), primitive.NewObjectID()
	c1 := fx.CreateCard(ctx, 1, "g1", a1, a2)
	fx.CreateCard(ctx, 2, "g1")

	refs, err := store.ReferencingAny(ctx, []primitive.ObjectID{a2}, primitive.NilObjectID)
	if err != nil || len(refs) != 1 || refs[0].ID != c1.ID {
		t.Fatalf("ReferencingAny = %v, %v", refs, err)
	}
	refs, _ = store.ReferencingAny(ctx, []primitive.ObjectID{a2}, c1.ID)
	if len(refs) != 0 {
		t.Errorf("ReferencingAny should exclude the card itself, got %d", len(refs))
	}

	n, err := store.PullAddresses(ctx, []primitive.ObjectID{a1})
	if err != nil || n != 1 {
		t.Fatalf("PullAddresses = %d, %v", n, err)
	}
	ids, _ := store.ReferencedAddressIDs(ctx)
	if len(ids) != 1 || ids[0] != a2 {
		t.Errorf("ReferencedAddressIDs = %v, want [%s]", ids, a2.Hex())
	}
}

func TestStore_PruneHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := cardstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c := testutil.NewCard(1, "g1")
	old := time.Now().UTC().Add(-400 * 24 * time.Hour)
	c.AssignedHistory = append(c.AssignedHistory, cardItem(old), cardItem(time.Now().UTC()))
	if _, err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	n, err := store.PruneHistory(ctx, time.Now().UTC().Add(-365*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneHistory = %d, %v", n, err)
	}
	got, _ := store.GetByID(ctx, c.ID)
	if len(got.AssignedHistory) != 1 {
		t.Errorf("history length = %d, want 1", len(got.AssignedHistory))
	}
}

func cardItem(at time.Time) models.Assignment {
	return models.Assignment{UserID: primitive.NewObjectID(), Date: at}
}
