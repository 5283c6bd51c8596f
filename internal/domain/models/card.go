// internal/domain/models/card.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Assignment records a user holding a card from Date on.
type Assignment struct {
	UserID primitive.ObjectID `bson:"user_id" json:"userId"`
	Date   time.Time          `bson:"date" json:"date"`
}

// Card is a numbered territory card grouping a set of addresses.
//
// A card is either unassigned (no UsersAssigned, StartDate nil) or held by
// exactly one user (one UsersAssigned entry, StartDate set, EndDate nil).
type Card struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Street          []primitive.ObjectID `bson:"street" json:"street"`
	Number          int                  `bson:"number" json:"number"`
	StartDate       *time.Time           `bson:"start_date" json:"startDate"`
	EndDate         *time.Time           `bson:"end_date" json:"endDate"`
	Group           string               `bson:"group" json:"group"`
	UsersAssigned   []Assignment         `bson:"users_assigned" json:"usersAssigned"`
	AssignedHistory []Assignment         `bson:"assigned_history" json:"assignedHistory"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsAssigned reports whether the card currently has a holder.
func (c Card) IsAssigned() bool {
	return c.StartDate != nil
}

// Holder returns the current holder's id, if any.
func (c Card) Holder() (primitive.ObjectID, bool) {
	if len(c.UsersAssigned) == 0 {
		return primitive.NilObjectID, false
	}
	return c.UsersAssigned[0].UserID, true
}

// FullCard is a card with its address references resolved.
type FullCard struct {
	Card
	Addresses []Address `json:"addresses"`
}

// StreetIDs returns the distinct address ids referenced by cards, in first
// seen order.
func StreetIDs(cards []Card) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	ids := make([]primitive.ObjectID, 0)
	for _, c := range cards {
		for _, id := range c.Street {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// JoinAddresses resolves each card's street against addrs, keeping street
// order. Ids missing from addrs are skipped.
func JoinAddresses(cards []Card, addrs []Address) []FullCard {
	byID := make(map[primitive.ObjectID]Address, len(addrs))
	for _, a := range addrs {
		byID[a.ID] = a
	}
	out := make([]FullCard, 0, len(cards))
	for _, c := range cards {
		fc := FullCard{Card: c, Addresses: make([]Address, 0, len(c.Street))}
		for _, id := range c.Street {
			if a, ok := byID[id]; ok {
				fc.Addresses = append(fc.Addresses, a)
			}
		}
		out = append(out, fc)
	}
	return out
}
