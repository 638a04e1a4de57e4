// Package validator checks a booking request before any inventory is
// touched. It reports every problem it finds in one pass.
package validator

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}$`)

type Attendee struct {
	Name  string
	Email string
	Phone string
}

type Request struct {
	Quantity  int
	Attendees []Attendee
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the aggregate returned when a request is rejected.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type Validator struct {
	maxQuantity int
}

func New(maxQuantity int) *Validator {
	return &Validator{maxQuantity: maxQuantity}
}

// Validate returns nil or a ValidationErrors. The remaining count is a
// live read and only advisory; the ledger has the final word.
func (v *Validator) Validate(req Request, remaining int) error {
	var errs ValidationErrors

	switch {
	case req.Quantity < 1 || req.Quantity > v.maxQuantity:
		errs = append(errs, FieldError{
			Field:   "quantity",
			Message: fmt.Sprintf("must be between 1 and %d", v.maxQuantity),
		})
	case req.Quantity > remaining:
		errs = append(errs, FieldError{
			Field:   "quantity",
			Message: fmt.Sprintf("only %d tickets remaining", max(remaining, 0)),
		})
	}

	if len(req.Attendees) != req.Quantity {
		errs = append(errs, FieldError{
			Field:   "attendees",
			Message: fmt.Sprintf("expected %d attendees, got %d", req.Quantity, len(req.Attendees)),
		})
	}

	for i, a := range req.Attendees {
		prefix := fmt.Sprintf("attendees[%d].", i)
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, FieldError{Field: prefix + "name", Message: "is required"})
		}
		email := strings.TrimSpace(a.Email)
		if email == "" {
			errs = append(errs, FieldError{Field: prefix + "email", Message: "is required"})
		} else if !emailPattern.MatchString(email) {
			errs = append(errs, FieldError{Field: prefix + "email", Message: "is not a valid email address"})
		}
		if strings.TrimSpace(a.Phone) == "" {
			errs = append(errs, FieldError{Field: prefix + "phone", Message: "is required"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
