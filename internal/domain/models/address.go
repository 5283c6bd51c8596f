// internal/domain/models/address.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Address types accepted by the address directory.
const (
	AddressHouse      = "house"
	AddressDepartment = "department"
	AddressApartment  = "apartment"
	AddressStore      = "store"
	AddressHotel      = "hotel"
	AddressRestaurant = "restaurant"
)

// AddressTypes lists every valid Address.Type value.
var AddressTypes = []string{
	AddressHouse,
	AddressDepartment,
	AddressApartment,
	AddressStore,
	AddressHotel,
	AddressRestaurant,
}

// IsValidAddressType reports whether t is one of AddressTypes.
func IsValidAddressType(t string) bool {
	for _, v := range AddressTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Address is a physical location registered by a group member.
//
// Street, city and neighborhood are stored trimmed and lowercased. The
// (street, number, city) triple is unique across all groups.
type Address struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Street       string             `bson:"street" json:"street"`
	Number       string             `bson:"number" json:"number"`
	City         string             `bson:"city" json:"city"`
	Neighborhood string             `bson:"neighborhood" json:"neighborhood"`
	GPS          *string            `bson:"gps,omitempty" json:"gps,omitempty"`
	Complement   *string            `bson:"complement,omitempty" json:"complement,omitempty"`
	Photo        string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Type         string             `bson:"type" json:"type"`
	UserID       primitive.ObjectID `bson:"user_id" json:"userId"`
	Group        string             `bson:"group" json:"group"`
	Confirmed    bool               `bson:"confirmed" json:"confirmed"`
	Active       bool               `bson:"active" json:"active"`
	Visited      bool               `bson:"visited" json:"visited"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
