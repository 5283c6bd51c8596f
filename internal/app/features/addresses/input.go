package addresses

import (
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/htmlsanitize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/inputval"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/redact"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
)

// CreateInput is the data for a new address. Booleans left nil take their
// defaults: active, not confirmed, not visited.
type CreateInput struct {
	Street       string
	Number       string
	City         string
	Neighborhood string
	GPS          *string
	Complement   *string
	Photo        string
	Type         string
	Confirmed    *bool
	Active       *bool
	Visited      *bool
}

// UpdateInput carries the fields to change. Nil means "leave as is".
type UpdateInput struct {
	Street       *string
	Number       *string
	City         *string
	Neighborhood *string
	GPS          *string
	Complement   *string
	Photo        *string
	Type         *string
	Confirmed    *bool
	Active       *bool
	Visited      *bool
}

// addressRules is what validate checks on the normalized record.
type addressRules struct {
	Street       string  `validate:"required,max=200" label:"street"`
	Number       string  `validate:"required,max=20" label:"number"`
	City         string  `validate:"required,max=100" label:"city"`
	Neighborhood string  `validate:"max=100" label:"neighborhood"`
	GPS          *string `validate:"omitempty,gps" label:"gps"`
	Complement   *string `validate:"omitempty,max=250" label:"complement"`
	Photo        string  `validate:"omitempty,httpurl" label:"photo"`
	Type         string  `validate:"required,addresstype" label:"type"`
}

func validate(a models.Address) error {
	res := inputval.Validate(addressRules{
		Street:       a.Street,
		Number:       a.Number,
		City:         a.City,
		Neighborhood: a.Neighborhood,
		GPS:          a.GPS,
		Complement:   a.Complement,
		Photo:        a.Photo,
		Type:         a.Type,
	})
	if res.HasErrors() {
		return apperr.Validation(res.FirstField(), res.First())
	}
	return nil
}

// cleanComplement strips markup and masks sensitive descriptors.
func cleanComplement(p *string) *string {
	if p == nil {
		return nil
	}
	v := redact.Complement(htmlsanitize.StripTags(*p))
	if v == "" {
		return nil
	}
	return &v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (in CreateInput) toAddress() models.Address {
	return models.Address{
		Street:       normalize.Text(in.Street),
		Number:       normalize.Trim(in.Number),
		City:         normalize.Text(in.City),
		Neighborhood: normalize.Text(in.Neighborhood),
		GPS:          normalize.OptionalText(in.GPS),
		Complement:   cleanComplement(in.Complement),
		Photo:        normalize.Trim(in.Photo),
		Type:         normalize.Text(in.Type),
		Confirmed:    boolOr(in.Confirmed, false),
		Active:       boolOr(in.Active, true),
		Visited:      boolOr(in.Visited, false),
	}
}

// apply returns cur with the set fields of in, normalized, and whether any
// value differs from cur.
func (in UpdateInput) apply(cur models.Address) (models.Address, bool) {
	next := cur
	changed := false

	setStr := func(dst *string, src *string, norm func(string) string) {
		if src == nil {
			return
		}
		if v := norm(*src); v != *dst {
			*dst = v
			changed = true
		}
	}
	setOpt := func(dst **string, v *string) {
		if equalOpt(*dst, v) {
			return
		}
		*dst = v
		changed = true
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = true
		}
	}

	setStr(&next.Street, in.Street, normalize.Text)
	setStr(&next.Number, in.Number, normalize.Trim)
	setStr(&next.City, in.City, normalize.Text)
	setStr(&next.Neighborhood, in.Neighborhood, normalize.Text)
	setStr(&next.Photo, in.Photo, normalize.Trim)
	setStr(&next.Type, in.Type, normalize.Text)
	if in.GPS != nil {
		setOpt(&next.GPS, normalize.OptionalText(in.GPS))
	}
	if in.Complement != nil {
		setOpt(&next.Complement, cleanComplement(in.Complement))
	}
	setBool(&next.Confirmed, in.Confirmed)
	setBool(&next.Active, in.Active)
	setBool(&next.Visited, in.Visited)

	return next, changed
}

func equalOpt(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
