package cards

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvariant marks a card whose stored or computed state is inconsistent.
var ErrInvariant = errors.New("card invariant violated")

// CheckInvariants validates the state of c:
//   - the number is positive and the card belongs to a group
//   - startDate is set exactly when there is one holder
//   - endDate is set exactly when there is no holder
//   - street holds no duplicate ids
func CheckInvariants(c models.Card) error {
	if c.Number < 1 {
		return fmt.Errorf("%w: number %d is not positive", ErrInvariant, c.Number)
	}
	if c.Group == "" {
		return fmt.Errorf("%w: card %d has no group", ErrInvariant, c.Number)
	}
	if len(c.UsersAssigned) > 1 {
		return fmt.Errorf("%w: card %d has %d holders", ErrInvariant, c.Number, len(c.UsersAssigned))
	}
	if (c.StartDate != nil) != (len(c.UsersAssigned) == 1) {
		return fmt.Errorf("%w: card %d startDate and usersAssigned disagree", ErrInvariant, c.Number)
	}
	if (c.EndDate != nil) != (len(c.UsersAssigned) == 0) {
		return fmt.Errorf("%w: card %d endDate and usersAssigned disagree", ErrInvariant, c.Number)
	}
	seen := make(map[primitive.ObjectID]struct{}, len(c.Street))
	for _, id := range c.Street {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: card %d lists address %s twice", ErrInvariant, c.Number, id.Hex())
		}
		seen[id] = struct{}{}
	}
	return nil
}

// NextNumber returns the lowest positive integer missing from nums.
func NextNumber(nums []int) int {
	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)
	next := 1
	for _, n := range sorted {
		if n < next {
			continue
		}
		if n > next {
			break
		}
		next++
	}
	return next
}
