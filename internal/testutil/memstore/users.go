package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	userstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Users mirrors userstore.Store.
type Users struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func NewUsers() *Users {
	return &Users{users: make(map[primitive.ObjectID]models.User)}
}

func cloneUser(u models.User) models.User {
	u.MyCards = cloneRefs(u.MyCards)
	u.MyTotalCards = cloneRefs(u.MyTotalCards)
	u.Comments = append([]models.Comment{}, u.Comments...)
	return u
}

func cloneRefs(refs []models.CardRef) []models.CardRef {
	out := make([]models.CardRef, 0, len(refs))
	for _, r := range refs {
		r.Addresses = append([]primitive.ObjectID{}, r.Addresses...)
		out = append(out, r)
	}
	return out
}

// Put stores u as-is, filling NameCI when empty.
func (s *Users) Put(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.NameCI == "" {
		u.NameCI = text.Fold(u.Name)
	}
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u)
}

// Get returns the stored user and whether it exists.
func (s *Users) Get(id primitive.ObjectID) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return cloneUser(u), ok
}

// FetchPrincipal implements auth.UserFetcher.
func (s *Users) FetchPrincipal(_ context.Context, userID string) *auth.Principal {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	u, ok := s.Get(oid)
	if !ok {
		return nil
	}
	p := auth.PrincipalFromUser(u)
	return &p
}

func (s *Users) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return models.User{}, userstore.ErrNotFound
}

func (s *Users) NameTaken(_ context.Context, name string, exclude primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nameTaken(text.Fold(normalize.Name(name)), exclude), nil
}

func (s *Users) nameTaken(folded string, exclude primitive.ObjectID) bool {
	for _, u := range s.users {
		if u.ID != exclude && u.NameCI == folded {
			return true
		}
	}
	return false
}

func (s *Users) EmailTaken(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Users) Create(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Group = normalize.Group(u.Group)
	u.MyCards = []models.CardRef{}
	u.MyTotalCards = []models.CardRef{}
	u.Comments = []models.Comment{}
	for _, ex := range s.users {
		if ex.Email == u.Email {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	if s.nameTaken(u.NameCI, primitive.NilObjectID) {
		return models.User{}, userstore.ErrDuplicateName
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (s *Users) ListByGroups(_ context.Context, groups []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, g := range groups {
		want[g] = true
	}
	out := []models.User{}
	for _, u := range s.users {
		if want[u.Group] {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (s *Users) UpdateProfile(_ context.Context, id primitive.ObjectID, upd userstore.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return userstore.ErrNotFound
	}
	if upd.Name != nil {
		name := normalize.Name(*upd.Name)
		if s.nameTaken(text.Fold(name), id) {
			return userstore.ErrDuplicateName
		}
		u.Name = name
		u.NameCI = text.Fold(name)
	}
	if upd.ProfilePicture != nil {
		u.ProfilePicture = strings.TrimSpace(*upd.ProfilePicture)
	}
	s.users[id] = u
	return nil
}

func (s *Users) SetGroup(_ context.Context, id primitive.ObjectID, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return userstore.ErrNotFound
	}
	u.Group = normalize.Group(group)
	u.IsAdmin, u.IsSS, u.IsSCards = false, false, false
	u.MyCards = []models.CardRef{}
	u.MyTotalCards = []models.CardRef{}
	u.Comments = []models.Comment{}
	s.users[id] = u
	return nil
}

func (s *Users) SetRoles(_ context.Context, id primitive.ObjectID, upd userstore.RoleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return userstore.ErrNotFound
	}
	if upd.IsAdmin != nil {
		u.IsAdmin = *upd.IsAdmin
	}
	if upd.IsSS != nil {
		u.IsSS = *upd.IsSS
	}
	if upd.IsSCards != nil {
		u.IsSCards = *upd.IsSCards
	}
	s.users[id] = u
	return nil
}

func (s *Users) AddCardRef(_ context.Context, userID primitive.ObjectID, ref models.CardRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return userstore.ErrNotFound
	}
	ref.Addresses = append([]primitive.ObjectID{}, ref.Addresses...)
	u.MyCards = append(u.MyCards, ref)
	u.MyTotalCards = append(u.MyTotalCards, ref)
	s.users[userID] = u
	return nil
}

func (s *Users) PullCardRef(_ context.Context, userID, cardID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.MyCards = dropCard(u.MyCards, cardID)
		s.users[userID] = u
	}
	return nil
}

func (s *Users) RevertCardRef(_ context.Context, userID, cardID primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	keep := func(refs []models.CardRef) []models.CardRef {
		out := refs[:0:0]
		for _, r := range refs {
			if r.CardID != cardID || !r.Date.Equal(at) {
				out = append(out, r)
			}
		}
		return out
	}
	u.MyCards = keep(u.MyCards)
	u.MyTotalCards = keep(u.MyTotalCards)
	s.users[userID] = u
	return nil
}

func (s *Users) PullCardFromAll(_ context.Context, cardID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		u.MyCards = dropCard(u.MyCards, cardID)
		s.users[id] = u
	}
	return nil
}

func dropCard(refs []models.CardRef, cardID primitive.ObjectID) []models.CardRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.CardID != cardID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Users) PullAddresses(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := idSet(ids)
	var n int64
	for id, u := range s.users {
		changed := false
		for i := range u.MyCards {
			if kept, ch := without(u.MyCards[i].Addresses, drop); ch {
				u.MyCards[i].Addresses = kept
				changed = true
			}
		}
		for i := range u.MyTotalCards {
			if kept, ch := without(u.MyTotalCards[i].Addresses, drop); ch {
				u.MyTotalCards[i].Addresses = kept
				changed = true
			}
		}
		if changed {
			s.users[id] = u
			n++
		}
	}
	return n, nil
}

func (s *Users) ReferencedAddressIDs(_ context.Context) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	out := []primitive.ObjectID{}
	for _, u := range s.users {
		for _, r := range append(append([]models.CardRef{}, u.MyCards...), u.MyTotalCards...) {
			for _, a := range r.Addresses {
				if !seen[a] {
					seen[a] = true
					out = append(out, a)
				}
			}
		}
	}
	return out, nil
}

func (s *Users) AddComment(_ context.Context, userID primitive.ObjectID, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return userstore.ErrNotFound
	}
	u.Comments = append(u.Comments, c)
	s.users[userID] = u
	return nil
}

func (s *Users) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}
