package cards_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/cards"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNextNumber(t *testing.T) {
	tests := []struct {
		name string
		nums []int
		want int
	}{
		{"empty", nil, 1},
		{"contiguous", []int{1, 2, 3}, 4},
		{"gap", []int{1, 2, 4}, 3},
		{"gap at start", []int{2, 3}, 1},
		{"unsorted", []int{3, 1, 5, 2}, 4},
		{"duplicates", []int{1, 1, 2, 2, 4}, 3},
		{"ignores non-positive", []int{-1, 0, 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cards.NextNumber(tt.nums); got != tt.want {
				t.Errorf("NextNumber(%v) = %d, want %d", tt.nums, got, tt.want)
			}
		})
	}
}

func TestCheckInvariants(t *testing.T) {
	now := time.Now().UTC()
	holder := []models.Assignment{{UserID: primitive.NewObjectID(), Date: now}}
	a := primitive.NewObjectID()

	tests := []struct {
		name string
		card models.Card
		ok   bool
	}{
		{"new card", models.Card{Number: 1, Group: "g1", EndDate: &now}, true},
		{"unassigned without end", models.Card{Number: 1, Group: "g1"}, false},
		{"assigned", models.Card{Number: 1, Group: "g1", StartDate: &now, UsersAssigned: holder}, true},
		{"zero number", models.Card{Group: "g1", EndDate: &now}, false},
		{"no group", models.Card{Number: 1}, false},
		{"start without holder", models.Card{Number: 1, Group: "g1", StartDate: &now}, false},
		{"holder without start", models.Card{Number: 1, Group: "g1", UsersAssigned: holder}, false},
		{"assigned with end", models.Card{Number: 1, Group: "g1", StartDate: &now, EndDate: &now, UsersAssigned: holder}, false},
		{"two holders", models.Card{Number: 1, Group: "g1", StartDate: &now, UsersAssigned: append(holder, holder...)}, false},
		{"duplicate street", models.Card{Number: 1, Group: "g1", EndDate: &now, Street: []primitive.ObjectID{a, a}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cards.CheckInvariants(tt.card)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, cards.ErrInvariant) {
				t.Errorf("got %v, want ErrInvariant", err)
			}
		})
	}
}
