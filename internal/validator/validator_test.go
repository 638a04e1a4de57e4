package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAttendee() Attendee {
	return Attendee{Name: "Ada Obi", Email: "ada@example.com", Phone: "+2348000000000"}
}

func fieldNames(errs ValidationErrors) []string {
	names := make([]string, len(errs))
	for i, fe := range errs {
		names[i] = fe.Field
	}
	return names
}

func TestValidate_OK(t *testing.T) {
	v := New(10)

	err := v.Validate(Request{Quantity: 2, Attendees: []Attendee{validAttendee(), validAttendee()}}, 5)

	assert.NoError(t, err)
}

func TestValidate_ReportsEveryFieldError(t *testing.T) {
	v := New(10)
	a1, a2, a3 := validAttendee(), validAttendee(), validAttendee()
	a1.Email = ""
	a2.Email = "  "
	a3.Phone = ""

	err := v.Validate(Request{Quantity: 3, Attendees: []Attendee{a1, a2, a3}}, 100)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.ElementsMatch(t, []string{"attendees[0].email", "attendees[1].email", "attendees[2].phone"}, fieldNames(verrs))
}

func TestValidate_QuantityBounds(t *testing.T) {
	v := New(10)

	err := v.Validate(Request{Quantity: 0}, 100)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "quantity", verrs[0].Field)

	attendees := make([]Attendee, 11)
	for i := range attendees {
		attendees[i] = validAttendee()
	}
	err = v.Validate(Request{Quantity: 11, Attendees: attendees}, 100)
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"quantity"}, fieldNames(verrs))
}

func TestValidate_QuantityAboveRemaining(t *testing.T) {
	v := New(10)

	err := v.Validate(Request{Quantity: 3, Attendees: []Attendee{validAttendee(), validAttendee(), validAttendee()}}, 2)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "quantity", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "only 2 tickets remaining")
}

func TestValidate_AttendeeCountMismatch(t *testing.T) {
	v := New(10)

	err := v.Validate(Request{Quantity: 2, Attendees: []Attendee{validAttendee()}}, 10)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"attendees"}, fieldNames(verrs))
}

func TestValidate_MalformedEmailAndBlankName(t *testing.T) {
	v := New(10)
	a := validAttendee()
	a.Name = "   "
	a.Email = "not-an-email"

	err := v.Validate(Request{Quantity: 1, Attendees: []Attendee{a}}, 10)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{"attendees[0].name", "attendees[0].email"}, fieldNames(verrs))
}
