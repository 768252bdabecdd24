package grant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
	openapierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
)

// ValidationContext names which lifecycle phase a Validator applies to.
// ContextSave matches both create and update, per the save: context rule.
type ValidationContext string

const (
	ContextCreate ValidationContext = "create"
	ContextUpdate ValidationContext = "update"
	ContextSave   ValidationContext = "save"
)

// FieldError is one entry of an Errors collection: the field it's attached
// to and a human-readable message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a rich validation-error collection:
// Add/FullMessages/Where/OfType/AttributeNames/GroupByAttribute, and it
// marshals to a `[{field, message}, …]` JSON shape.
type Errors struct {
	entries []FieldError
}

// Add appends one field error.
func (e *Errors) Add(field, message string) {
	e.entries = append(e.entries, FieldError{Field: field, Message: message})
}

// Empty reports whether no errors have been added.
func (e *Errors) Empty() bool { return len(e.entries) == 0 }

// FullMessages renders every error as "<field> <message>".
func (e *Errors) FullMessages() []string {
	out := make([]string, len(e.entries))
	for i, fe := range e.entries {
		out[i] = strings.TrimSpace(fe.Field + " " + fe.Message)
	}
	return out
}

// AsError folds every entry into a single composite error, for callers that
// want one error value to return or wrap instead of walking Errors' entries
// themselves. Returns nil if Empty.
func (e *Errors) AsError() error {
	if e.Empty() {
		return nil
	}
	wrapped := make([]error, len(e.entries))
	for i, fe := range e.entries {
		wrapped[i] = fmt.Errorf("%s %s", fe.Field, fe.Message)
	}
	return openapierrors.CompositeValidationError(wrapped...)
}

// Where returns every error attached to field.
func (e *Errors) Where(field string) []FieldError {
	var out []FieldError
	for _, fe := range e.entries {
		if fe.Field == field {
			out = append(out, fe)
		}
	}
	return out
}

// OfType returns every error on field whose message equals message exactly
// (the predicate-style lookup used to check for a specific validator's
// failure rather than any failure on that field).
func (e *Errors) OfType(field, message string) []FieldError {
	var out []FieldError
	for _, fe := range e.entries {
		if fe.Field == field && fe.Message == message {
			out = append(out, fe)
		}
	}
	return out
}

// AttributeNames returns the distinct fields that have at least one error,
// in first-seen order.
func (e *Errors) AttributeNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fe := range e.entries {
		if !seen[fe.Field] {
			seen[fe.Field] = true
			out = append(out, fe.Field)
		}
	}
	return out
}

// GroupByAttribute groups every error by its field.
func (e *Errors) GroupByAttribute() map[string][]FieldError {
	out := make(map[string][]FieldError)
	for _, fe := range e.entries {
		out[fe.Field] = append(out[fe.Field], fe)
	}
	return out
}

// MarshalJSON serializes as a flat [{field, message}, …] array.
func (e *Errors) MarshalJSON() ([]byte, error) {
	if e.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.entries)
}

// Validator is one declared (field, message, predicate, context) rule.
// Predicate receives the candidate value and the full record (as a
// map[string]any of current column values) and reports validity.
type Validator struct {
	Field     string
	Message   string
	Context   ValidationContext
	Predicate func(value any, record map[string]any) bool

	// If/Unless gate whether the validator runs at all, evaluated against
	// the record before Predicate.
	If         func(record map[string]any) bool
	Unless     func(record map[string]any) bool
	AllowNil   bool
	AllowBlank bool
}

func (v *Validator) appliesTo(ctx ValidationContext) bool {
	return v.Context == ctx || v.Context == ContextSave
}

func (v *Validator) skippedByCondition(record map[string]any) bool {
	if v.If != nil && !v.If(record) {
		return true
	}
	if v.Unless != nil && v.Unless(record) {
		return true
	}
	return false
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// Validate runs every validator whose context matches ctx (or is ContextSave)
// against record, honoring if/unless/allow_nil/allow_blank, and returns the
// accumulated Errors. An empty (non-nil) Errors means valid.
func Validate(validators []*Validator, record map[string]any, ctx ValidationContext) *Errors {
	errs := &Errors{}
	for _, v := range validators {
		if !v.appliesTo(ctx) {
			continue
		}
		if v.skippedByCondition(record) {
			continue
		}

		value := record[v.Field]
		if value == nil && v.AllowNil {
			continue
		}
		if v.AllowBlank && isBlank(value) {
			continue
		}

		if !v.Predicate(value, record) {
			errs.Add(v.Field, v.Message)
		}
	}
	return errs
}

// Built-in validator constructors. Each returns a *Validator ready to add
// to a model's validator list.

// Presence fails when value is nil, empty string, or whitespace-only.
func Presence(field string, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "can't be blank",
		Predicate: func(value any, _ map[string]any) bool { return !isBlank(value) },
	}
}

// Format validates value against a regular expression (govalidator's cached
// matcher); negate inverts it into a format(without:) check.
func Format(field, pattern string, negate bool, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is invalid",
		Predicate: func(value any, _ map[string]any) bool {
			s, _ := value.(string)
			matched := govalidator.Matches(s, pattern)
			if negate {
				return !matched
			}
			return matched
		},
	}
}

// EmailValidator validates value as an RFC-5322 email address.
func EmailValidator(field string, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is not a valid email",
		Predicate: func(value any, _ map[string]any) bool {
			s, _ := value.(string)
			return govalidator.IsEmail(s)
		},
	}
}

// URLValidator validates value as a well-formed URL.
func URLValidator(field string, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is not a valid URL",
		Predicate: func(value any, _ map[string]any) bool {
			s, _ := value.(string)
			return govalidator.IsURL(s)
		},
	}
}

// DateTimeFormat validates value as an RFC-3339 date-time using
// go-openapi/strfmt, for structured formats beyond govalidator's string
// checks (date, date-time, uuid).
func DateTimeFormat(field string, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is not a valid date-time",
		Predicate: func(value any, _ map[string]any) bool {
			s, ok := value.(string)
			if !ok {
				return false
			}
			var dt strfmt.DateTime
			return dt.UnmarshalText([]byte(s)) == nil
		},
	}
}

// Numericality supports gt/gte/lt/lte comparisons on int, int32, int64,
// float32 and float64 values; it has no only-integer or odd/even check.
func Numericality(field string, ctx ValidationContext, gt, gte, lt, lte *float64) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is not a valid number",
		Predicate: func(value any, _ map[string]any) bool {
			f, ok := toFloat(value)
			if !ok {
				return false
			}
			if gt != nil && !(f > *gt) {
				return false
			}
			if gte != nil && !(f >= *gte) {
				return false
			}
			if lt != nil && !(f < *lt) {
				return false
			}
			if lte != nil && !(f <= *lte) {
				return false
			}
			return true
		},
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Length validates a string's rune length against min/max (-1 to skip).
func Length(field string, min, max int, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx,
		Message: fmt.Sprintf("must be between %d and %d characters", min, max),
		Predicate: func(value any, _ map[string]any) bool {
			s, _ := value.(string)
			n := len([]rune(s))
			if min >= 0 && n < min {
				return false
			}
			if max >= 0 && n > max {
				return false
			}
			return true
		},
	}
}

// Inclusion fails unless value is one of allowed.
func Inclusion(field string, allowed []any, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is not included in the list",
		Predicate: func(value any, _ map[string]any) bool {
			for _, a := range allowed {
				if a == value {
					return true
				}
			}
			return false
		},
	}
}

// Exclusion fails if value is one of forbidden.
func Exclusion(field string, forbidden []any, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "is reserved",
		Predicate: func(value any, _ map[string]any) bool {
			for _, f := range forbidden {
				if f == value {
					return false
				}
			}
			return true
		},
	}
}

// Acceptance fails unless value is exactly true (or "1"/"true" as a string),
// for terms-of-service style checkbox fields.
func Acceptance(field string, ctx ValidationContext) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "must be accepted",
		Predicate: func(value any, _ map[string]any) bool {
			switch v := value.(type) {
			case bool:
				return v
			case string:
				return v == "1" || strings.EqualFold(v, "true")
			default:
				return false
			}
		},
	}
}

// Confirmation fails unless record[field] equals record[field+"_confirmation"].
func Confirmation(field string, ctx ValidationContext) *Validator {
	confirmField := field + "_confirmation"
	return &Validator{
		Field: field, Context: ctx,
		Message: fmt.Sprintf("doesn't match %s", field),
		Predicate: func(value any, record map[string]any) bool {
			return value == record[confirmField]
		},
	}
}

// Uniqueness fails when exists reports another row already has this value
// (scoped/case-sensitive behavior, and self-exclusion on update, are the
// caller's responsibility to encode into exists — it's handed the value and
// the record being validated so it can exclude the current primary key).
func Uniqueness(field string, ctx ValidationContext, exists func(value any, record map[string]any) bool) *Validator {
	return &Validator{
		Field: field, Context: ctx, Message: "has already been taken",
		Predicate: func(value any, record map[string]any) bool {
			return !exists(value, record)
		},
	}
}
