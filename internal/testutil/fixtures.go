package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// NewUser builds an unsaved user in group with fresh empty collections.
func NewUser(name, email, group string) models.User {
	now := time.Now().UTC()
	return models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		NameCI:       text.Fold(name),
		Email:        email,
		PasswordHash: "$2a$04$fixturefixturefixturefixturefixturefixturefixturefix",
		Group:        group,
		MyCards:      []models.CardRef{},
		MyTotalCards: []models.CardRef{},
		Comments:     []models.Comment{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CreateUser inserts a plain member of group.
func (f *Fixtures) CreateUser(ctx context.Context, name, email, group string) models.User {
	f.t.Helper()
	return f.InsertUser(ctx, NewUser(name, email, group))
}

// CreateAdmin inserts a group administrator.
func (f *Fixtures) CreateAdmin(ctx context.Context, name, email, group string) models.User {
	f.t.Helper()
	u := NewUser(name, email, group)
	u.IsAdmin = true
	return f.InsertUser(ctx, u)
}

// InsertUser inserts u as-is.
func (f *Fixtures) InsertUser(ctx context.Context, u models.User) models.User {
	f.t.Helper()
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create user: %v", err)
	}
	return u
}

// NewAddress builds an unsaved house address in group.
func NewAddress(street, number, group string, owner primitive.ObjectID) models.Address {
	now := time.Now().UTC()
	return models.Address{
		ID:           primitive.NewObjectID(),
		Street:       street,
		Number:       number,
		City:         "test city",
		Neighborhood: "center",
		Type:         models.AddressHouse,
		UserID:       owner,
		Group:        group,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CreateAddress inserts an address in group.
func (f *Fixtures) CreateAddress(ctx context.Context, street, number, group string, owner primitive.ObjectID) models.Address {
	f.t.Helper()
	a := NewAddress(street, number, group, owner)
	if _, err := f.db.Collection("addresses").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create address: %v", err)
	}
	return a
}

// CreateAddresses inserts n addresses on the same street.
func (f *Fixtures) CreateAddresses(ctx context.Context, n int, group string, owner primitive.ObjectID) []models.Address {
	f.t.Helper()
	out := make([]models.Address, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, f.CreateAddress(ctx, "fixture street", fmt.Sprint(i), group, owner))
	}
	return out
}

// NewCard builds an unsaved, unassigned card.
func NewCard(number int, group string, street ...primitive.ObjectID) models.Card {
	now := time.Now().UTC()
	if street == nil {
		street = []primitive.ObjectID{}
	}
	return models.Card{
		ID:              primitive.NewObjectID(),
		Number:          number,
		Group:           group,
		Street:          street,
		EndDate:         &now,
		UsersAssigned:   []models.Assignment{},
		AssignedHistory: []models.Assignment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CreateCard inserts an unassigned card.
func (f *Fixtures) CreateCard(ctx context.Context, number int, group string, street ...primitive.ObjectID) models.Card {
	f.t.Helper()
	c := NewCard(number, group, street...)
	if _, err := f.db.Collection("cards").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create card: %v", err)
	}
	return c
}
