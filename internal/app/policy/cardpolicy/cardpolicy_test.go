package cardpolicy_test

import (
	"testing"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/cardpolicy"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
)

func TestCardPolicy(t *testing.T) {
	member := testutil.MemberPrincipal("g1")
	scards := testutil.CardManagerPrincipal("g1")
	ss := testutil.MemberPrincipal("g1")
	ss.IsSS = true
	newcomer := testutil.MemberPrincipal(models.DefaultGroup)

	card := models.Card{Group: "g1"}
	foreign := models.Card{Group: "g2"}

	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"member reads", cardpolicy.CanRead(member), ""},
		{"default group cannot read", cardpolicy.CanRead(newcomer), apperr.KindUnauthorized},
		{"other group card is not found", cardpolicy.CanView(member, foreign), apperr.KindNotFound},
		{"supervisor creates", cardpolicy.CanCreate(ss), ""},
		{"card manager cannot create", cardpolicy.CanCreate(scards), apperr.KindUnauthorized},
		{"member cannot create", cardpolicy.CanCreate(member), apperr.KindUnauthorized},
		{"supervisor deletes", cardpolicy.CanDelete(ss, card), ""},
		{"card manager cannot delete", cardpolicy.CanDelete(scards, card), apperr.KindUnauthorized},
		{"card manager manages", cardpolicy.CanManage(scards, card), ""},
		{"supervisor manages", cardpolicy.CanManage(ss, card), ""},
		{"member cannot manage", cardpolicy.CanManage(member, card), apperr.KindUnauthorized},
		{"manager cannot manage other group", cardpolicy.CanManage(scards, foreign), apperr.KindNotFound},
		{"member cannot manage any", cardpolicy.CanManageAny(member), apperr.KindUnauthorized},
		{"manager manages any", cardpolicy.CanManageAny(scards), ""},
		{"assign to same group", cardpolicy.CanAssignTo(scards, models.User{Group: "g1"}), ""},
		{"assign to other group", cardpolicy.CanAssignTo(scards, models.User{Group: "g2"}), apperr.KindNotFound},
		{"member comments", cardpolicy.CanComment(member, card), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == "" {
				if tt.err != nil {
					t.Errorf("expected allowed, got %v", tt.err)
				}
				return
			}
			if !apperr.IsKind(tt.err, tt.want) {
				t.Errorf("got %v, want kind %s", tt.err, tt.want)
			}
		})
	}
}
