package pipeline

import (
	"errors"
	"fmt"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
)

var (
	ErrNoText           = errors.New("no usable text")
	ErrInsufficientData = errors.New("insufficient data extracted")
	ErrNotDarm          = errors.New("document does not look like a DARM")
)

// Validated is an extraction that passed the minimum-field rules.
type Validated struct {
	Fields               internal.ExtractedFields
	UsedTotalAsPrincipal bool
}

// Validate enforces the required fields. Optional fields are left untouched;
// their defaults apply when the record is assembled.
func Validate(fields internal.ExtractedFields) (Validated, error) {
	if !fields.Has(internal.FieldRegistrationID) {
		return Validated{}, fmt.Errorf("%w: missing %s", ErrInsufficientData, internal.FieldRegistrationID)
	}
	hasPrincipal := fields.Has(internal.FieldPrincipalValue)
	hasTotal := fields.Has(internal.FieldTotalValue)
	if !hasPrincipal && !hasTotal {
		return Validated{}, fmt.Errorf("%w: missing %s and %s", ErrInsufficientData, internal.FieldPrincipalValue, internal.FieldTotalValue)
	}

	out := internal.ExtractedFields{}
	for k, v := range fields {
		out[k] = v
	}
	v := Validated{Fields: out}
	if !hasPrincipal {
		out[internal.FieldPrincipalValue] = out[internal.FieldTotalValue]
		v.UsedTotalAsPrincipal = true
	}
	return v, nil
}
