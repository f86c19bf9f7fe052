package httpapi

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// fieldError describes one rejected request field.
type fieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks email shape and the minimum password length.
func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(4, 60), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 0)),
	)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Surname   string `json:"surname,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

// Validate requires a role and accepts birthDate only as YYYY-MM-DD.
func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 64)),
		validation.Field(&r.Role, validation.Required),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Surname, validation.Length(0, 100)),
		validation.Field(&r.BirthDate, validation.Date("2006-01-02")),
	)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// sensitiveFields are never echoed back as rejected values.
var sensitiveFields = map[string]struct{}{
	"password": {},
	"token":    {},
}

// fieldErrors flattens ozzo validation errors into a stable, sorted list.
// values maps JSON field names to the submitted values.
func fieldErrors(err error, values map[string]any) []fieldError {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []fieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]fieldError, 0, len(verrs))
	for field, ferr := range verrs {
		fe := fieldError{Field: field, Message: ferr.Error()}
		if _, secret := sensitiveFields[field]; !secret {
			fe.RejectedValue = values[field]
		}
		out = append(out, fe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
