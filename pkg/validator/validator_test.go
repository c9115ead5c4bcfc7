package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type newUser struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email,omitempty" validate:"required,email"`
	Password string `json:"-" validate:"min=12"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(newUser{Username: "alice", Email: "alice@soc.local", Password: "correct-horse-battery"}))

	err := ValidateStruct(newUser{Email: "nope", Password: "short"})
	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.Len(t, failures, 3)

	byField := map[string]ValidationError{}
	for _, f := range failures {
		byField[f.Field] = f
	}
	require.Equal(t, "required", byField["username"].Tag)
	require.Equal(t, "email", byField["email"].Tag)
	require.Equal(t, "12", byField["Password"].Param)
	require.Contains(t, err.Error(), "Password failed on min=12")
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("alice")
	require.Error(t, err)
	_, isFailure := err.(ValidationErrors)
	require.False(t, isFailure)
}

func TestRegisterValidation(t *testing.T) {
	require.NoError(t, RegisterValidation("loopback", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "127.0.0.1"
	}))

	type probe struct {
		Addr string `validate:"loopback"`
	}
	require.NoError(t, ValidateStruct(probe{Addr: "127.0.0.1"}))
	require.Error(t, ValidateStruct(probe{Addr: "10.0.0.1"}))
}

func TestRegisterEnum(t *testing.T) {
	require.NoError(t, RegisterEnum("testservice", "abuseipdb", "shodan"))

	type payload struct {
		Service string `json:"service" validate:"testservice"`
	}
	require.NoError(t, ValidateStruct(payload{Service: " Shodan "}))
	require.NoError(t, ValidateStruct(payload{}))

	err := ValidateStruct(payload{Service: "censys"})
	var failures ValidationErrors
	require.ErrorAs(t, err, &failures)
	require.Equal(t, ValidationErrors{{Field: "service", Tag: "testservice"}}, failures)
}

func TestValidateVar(t *testing.T) {
	cases := []struct {
		value, tag string
		ok         bool
	}{
		{"203.0.113.7", "required,ip", true},
		{"not-an-ip", "required,ip", false},
		{"d41d8cd98f00b204e9800998ecf8427e", "hexadecimal,len=32|len=40|len=64", true},
		{"abc", "hexadecimal,len=32|len=40|len=64", false},
	}
	for _, tc := range cases {
		err := ValidateVar(tc.value, tc.tag)
		if tc.ok {
			require.NoError(t, err, tc.value)
		} else {
			require.Error(t, err, tc.value)
		}
	}
}
