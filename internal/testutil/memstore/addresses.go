package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	addressstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/addresses"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/paging"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Addresses mirrors addressstore.Store.
type Addresses struct {
	mu    sync.Mutex
	addrs map[primitive.ObjectID]models.Address
}

func NewAddresses() *Addresses {
	return &Addresses{addrs: make(map[primitive.ObjectID]models.Address)}
}

// Put stores a as-is.
func (s *Addresses) Put(a models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[a.ID] = a
}

// Has reports whether id is stored.
func (s *Addresses) Has(id primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.addrs[id]
	return ok
}

func (s *Addresses) Find(_ context.Context, f addressstore.Filter, w paging.Window) ([]models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Address
	for _, a := range s.addrs {
		if a.Group != f.Group {
			continue
		}
		if f.Street != "" && !strings.Contains(strings.ToLower(a.Street), strings.ToLower(f.Street)) {
			continue
		}
		if f.City != "" && a.City != f.City {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.Hex() > all[j].ID.Hex()
	})

	out := []models.Address{}
	for i := int(w.Skip); i < len(all) && int64(len(out)) < w.Limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Addresses) GetByID(_ context.Context, id primitive.ObjectID) (models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addrs[id]
	if !ok {
		return models.Address{}, addressstore.ErrNotFound
	}
	return a, nil
}

func (s *Addresses) GetMany(_ context.Context, ids []primitive.ObjectID) ([]models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Address{}
	for _, id := range ids {
		if a, ok := s.addrs[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Addresses) TripleExists(_ context.Context, street, number, city string, exclude primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripleTaken(street, number, city, exclude), nil
}

func (s *Addresses) tripleTaken(street, number, city string, exclude primitive.ObjectID) bool {
	for _, a := range s.addrs {
		if a.ID != exclude && a.Street == street && a.Number == number && a.City == city {
			return true
		}
	}
	return false
}

func (s *Addresses) Create(_ context.Context, a models.Address) (models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripleTaken(a.Street, a.Number, a.City, primitive.NilObjectID) {
		return models.Address{}, addressstore.ErrDuplicate
	}
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.addrs[a.ID] = a
	return a, nil
}

func (s *Addresses) Update(_ context.Context, a models.Address) (models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[a.ID]; !ok {
		return models.Address{}, addressstore.ErrNotFound
	}
	if s.tripleTaken(a.Street, a.Number, a.City, a.ID) {
		return models.Address{}, addressstore.ErrDuplicate
	}
	a.UpdatedAt = time.Now().UTC()
	s.addrs[a.ID] = a
	return a, nil
}

func (s *Addresses) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[id]; !ok {
		return false, nil
	}
	delete(s.addrs, id)
	return true, nil
}

func (s *Addresses) ExistingIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.addrs[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}
