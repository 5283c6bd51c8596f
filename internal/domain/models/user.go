// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultGroup is the group every user starts in. Members of the default
// group hold no privileges and cannot see group-scoped data.
const DefaultGroup = "0"

// CardRef is a denormalized copy of a card handed to a user.
type CardRef struct {
	CardID    primitive.ObjectID   `bson:"card_id" json:"cardId"`
	Date      time.Time            `bson:"date" json:"date"`
	Addresses []primitive.ObjectID `bson:"addresses" json:"addresses"`
}

// Comment is a short note a user leaves on a card.
type Comment struct {
	CardID primitive.ObjectID `bson:"card_id" json:"cardId"`
	Text   string             `bson:"text" json:"text"`
	Date   time.Time          `bson:"date" json:"date"`
}

// User is an account in the directory.
//
// NOTE:
//   - Group and the role flags move together. Changing Group clears the
//     flags and the MyCards, MyTotalCards and Comments collections.
//   - PasswordHash is never serialized to JSON.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	NameCI         string             `bson:"name_ci" json:"-"` // folded, used for the unique index
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"password" json:"-"`
	ProfilePicture string             `bson:"profile_picture,omitempty" json:"profilePicture,omitempty"`
	Group          string             `bson:"group" json:"group"`
	IsAdmin        bool               `bson:"is_admin" json:"isAdmin"`
	IsSS           bool               `bson:"is_ss" json:"isSS"`
	IsSCards       bool               `bson:"is_scards" json:"isSCards"`
	MyCards        []CardRef          `bson:"my_cards" json:"myCards"`
	MyTotalCards   []CardRef          `bson:"my_total_cards" json:"myTotalCards"`
	Comments       []Comment          `bson:"comments" json:"comments"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// InDefaultGroup reports whether the user belongs to no real group yet.
func (u User) InDefaultGroup() bool {
	return u.Group == "" || u.Group == DefaultGroup
}
