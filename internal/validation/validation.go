package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"travel-agent-api/internal/models"
)

// DateLayout is the calendar date format used by every upstream provider.
const DateLayout = "2006-01-02"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MissingFields builds the error returned when required request fields are
// absent. The message lists the fields in the order given.
func MissingFields(fields ...string) error {
	var list string
	switch len(fields) {
	case 0:
		list = ""
	case 1:
		list = fields[0]
	case 2:
		list = fields[0] + " and " + fields[1]
	default:
		list = strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
	}
	verb := "are"
	if len(fields) == 1 {
		verb = "is"
	}
	return &ValidationError{
		Message: fmt.Sprintf("Missing required fields: %s %s required", list, verb),
	}
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateDate checks that value is a YYYY-MM-DD calendar date.
func ValidateDate(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   fieldName,
			Message: "must be a date in YYYY-MM-DD format",
		}
	}

	return t, nil
}

// ValidateOptionalDate is ValidateDate for fields that may be empty.
func ValidateOptionalDate(value, fieldName string) error {
	if value == "" {
		return nil
	}
	_, err := ValidateDate(value, fieldName)
	return err
}

// ParseFloat parses raw as a finite float. An empty raw yields def.
func ParseFloat(raw, fieldName string, def float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{
			Field:   fieldName,
			Message: "must be a number",
		}
	}

	return v, nil
}

// ParseInt parses raw as an integer. An empty raw yields def. Values such as
// "2.0" are accepted when they hold a whole number.
func ParseInt(raw, fieldName string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}

	f, err := ParseFloat(raw, fieldName, 0)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, &ValidationError{
			Field:   fieldName,
			Message: "must be a whole number",
		}
	}
	if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		return 0, &ValidationError{
			Field:   fieldName,
			Message: "is out of range",
		}
	}
	return int(f), nil
}

// OptionalFloat parses an optional body number, falling back to def.
func OptionalFloat(n models.FlexNumber, fieldName string, def float64) (float64, error) {
	if !n.Set {
		return def, nil
	}
	return ParseFloat(n.Raw, fieldName, def)
}

// OptionalPositiveFloat is OptionalFloat returning nil when the field is
// absent, for filters that are off unless given.
func OptionalPositiveFloat(n models.FlexNumber, fieldName string) (*float64, error) {
	if !n.Set {
		return nil, nil
	}
	v, err := ParseFloat(n.Raw, fieldName, 0)
	if err != nil {
		return nil, err
	}
	if v <= 0 {
		return nil, &ValidationError{
			Field:   fieldName,
			Message: "must be positive",
		}
	}
	return &v, nil
}

// PositiveInt parses an optional body integer that must be at least 1.
func PositiveInt(n models.FlexNumber, fieldName string, def int) (int, error) {
	if !n.Set {
		return def, nil
	}
	v, err := ParseInt(n.Raw, fieldName, def)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, &ValidationError{
			Field:   fieldName,
			Message: "must be at least 1",
		}
	}
	return v, nil
}

// RequiredPositiveFloat parses a present body number that must be > 0.
func RequiredPositiveFloat(n models.FlexNumber, fieldName string) (float64, error) {
	v, err := ParseFloat(n.Raw, fieldName, 0)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, &ValidationError{
			Field:   fieldName,
			Message: "must be positive",
		}
	}
	return v, nil
}
