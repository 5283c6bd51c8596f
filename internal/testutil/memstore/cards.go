// Package memstore holds in-memory stand-ins for the MongoDB stores. They
// follow the same contracts (sentinel errors, conditional writes) so
// services can be tested without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	cardstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/cards"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cards mirrors cardstore.Store.
type Cards struct {
	mu    sync.Mutex
	cards map[primitive.ObjectID]models.Card

	// BeforeAssign, when set, runs before each conditional assign, outside
	// the lock. Tests use it to simulate a concurrent writer.
	BeforeAssign func(id primitive.ObjectID)
	// BeforeInsert, when set, runs before each insert, outside the lock.
	BeforeInsert func(c models.Card)
}

func NewCards() *Cards {
	return &Cards{cards: make(map[primitive.ObjectID]models.Card)}
}

func clone(c models.Card) models.Card {
	c.Street = append([]primitive.ObjectID{}, c.Street...)
	c.UsersAssigned = append([]models.Assignment{}, c.UsersAssigned...)
	c.AssignedHistory = append([]models.Assignment{}, c.AssignedHistory...)
	return c
}

// Put stores c as-is.
func (s *Cards) Put(c models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[c.ID] = clone(c)
}

// Get returns the stored card and whether it exists.
func (s *Cards) Get(id primitive.ObjectID) (models.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	return clone(c), ok
}

// All returns every card ordered by number.
func (s *Cards) All() []models.Card {
	out, _ := s.List(context.Background(), "")
	return out
}

func (s *Cards) List(_ context.Context, group string) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Card{}
	for _, c := range s.cards {
		if group == "" || c.Group == group {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Cards) GetByID(_ context.Context, id primitive.ObjectID) (models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return models.Card{}, cardstore.ErrNotFound
	}
	return clone(c), nil
}

func (s *Cards) Numbers(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nums := make([]int, 0, len(s.cards))
	for _, c := range s.cards {
		nums = append(nums, c.Number)
	}
	sort.Ints(nums)
	return nums, nil
}

func (s *Cards) Insert(_ context.Context, c models.Card) (models.Card, error) {
	if s.BeforeInsert != nil {
		s.BeforeInsert(c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.cards {
		if ex.Number == c.Number {
			return models.Card{}, cardstore.ErrDuplicateNumber
		}
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c = clone(c)
	s.cards[c.ID] = c
	return clone(c), nil
}

func (s *Cards) Assign(_ context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error) {
	if s.BeforeAssign != nil {
		s.BeforeAssign(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.StartDate != nil {
		return false, nil
	}
	c.StartDate = &at
	c.EndDate = nil
	c.UsersAssigned = []models.Assignment{{UserID: userID, Date: at}}
	c.UpdatedAt = time.Now().UTC()
	s.cards[id] = c
	return true, nil
}

func (s *Cards) RevertAssign(_ context.Context, id, userID primitive.ObjectID, prevEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || len(c.UsersAssigned) == 0 || c.UsersAssigned[0].UserID != userID {
		return nil
	}
	c.StartDate = nil
	c.EndDate = prevEnd
	c.UsersAssigned = []models.Assignment{}
	s.cards[id] = c
	return nil
}

func (s *Cards) Return(_ context.Context, id, holder primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.StartDate == nil || len(c.UsersAssigned) == 0 || c.UsersAssigned[0].UserID != holder {
		return false, nil
	}
	c.StartDate = nil
	c.EndDate = &at
	c.UsersAssigned = []models.Assignment{}
	c.AssignedHistory = append(c.AssignedHistory, models.Assignment{UserID: holder, Date: at})
	s.cards[id] = c
	return true, nil
}

func (s *Cards) SetStreet(_ context.Context, id primitive.ObjectID, street []primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return cardstore.ErrNotFound
	}
	c.Street = append([]primitive.ObjectID{}, street...)
	s.cards[id] = c
	return nil
}

func (s *Cards) ReferencingAny(_ context.Context, ids []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := idSet(ids)
	var out []models.Card
	for _, c := range s.cards {
		if c.ID == exclude {
			continue
		}
		for _, a := range c.Street {
			if want[a] {
				out = append(out, clone(c))
				break
			}
		}
	}
	return out, nil
}

func (s *Cards) HeldBy(_ context.Context, userID primitive.ObjectID) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Card
	for _, c := range s.cards {
		for _, a := range c.UsersAssigned {
			if a.UserID == userID {
				out = append(out, clone(c))
			}
		}
	}
	return out, nil
}

func (s *Cards) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return false, nil
	}
	delete(s.cards, id)
	return true, nil
}

func (s *Cards) PullAddresses(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := idSet(ids)
	var n int64
	for id, c := range s.cards {
		kept, changed := without(c.Street, drop)
		if changed {
			c.Street = kept
			s.cards[id] = c
			n++
		}
	}
	return n, nil
}

func (s *Cards) ReferencedAddressIDs(_ context.Context) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	out := []primitive.ObjectID{}
	for _, c := range s.cards {
		for _, a := range c.Street {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *Cards) PruneHistory(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.cards {
		kept := c.AssignedHistory[:0:0]
		for _, h := range c.AssignedHistory {
			if !h.Date.Before(cutoff) {
				kept = append(kept, h)
			}
		}
		if len(kept) != len(c.AssignedHistory) {
			c.AssignedHistory = kept
			s.cards[id] = c
			n++
		}
	}
	return n, nil
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]bool {
	m := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func without(ids []primitive.ObjectID, drop map[primitive.ObjectID]bool) ([]primitive.ObjectID, bool) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out, len(out) != len(ids)
}
