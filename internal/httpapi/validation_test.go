package httpapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		req    loginRequest
		fields []string
	}{
		{name: "valid", req: loginRequest{Email: "a@x.com", Password: "secret1"}},
		{name: "blank", req: loginRequest{}, fields: []string{"email", "password"}},
		{name: "bad email", req: loginRequest{Email: "a@", Password: "secret1"}, fields: []string{"email"}},
		{name: "short password", req: loginRequest{Email: "a@x.com", Password: "12345"}, fields: []string{"password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			got := fieldErrors(err, nil)
			names := make([]string, 0, len(got))
			for _, fe := range got {
				names = append(names, fe.Field)
			}
			assert.Equal(t, tt.fields, names)
		})
	}
}

func TestRegisterRequestBirthDate(t *testing.T) {
	req := registerRequest{Email: "a@x.com", Password: "secret1", Role: "USER", BirthDate: "1990-02-30"}
	err := req.Validate()
	require.Error(t, err)

	got := fieldErrors(err, map[string]any{"birthDate": req.BirthDate})
	require.Len(t, got, 1)
	assert.Equal(t, "birthDate", got[0].Field)
	assert.Equal(t, "1990-02-30", got[0].RejectedValue)

	req.BirthDate = "1990-02-28"
	assert.NoError(t, req.Validate())
}

func TestFieldErrorsHidesSecrets(t *testing.T) {
	err := tokenRequest{}.Validate()
	got := fieldErrors(err, map[string]any{"token": "leak"})
	require.Len(t, got, 1)
	assert.Nil(t, got[0].RejectedValue)
}

func TestFieldErrorsPlainError(t *testing.T) {
	got := fieldErrors(errors.New("boom"), nil)
	assert.Equal(t, []fieldError{{Field: "body", Message: "boom"}}, got)
}
