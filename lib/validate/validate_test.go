package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Code  string   `json:"code" validate:"required,accesscode"`
	Types []string `json:"allowed_types" validate:"omitempty,dive,mimetype"`
	Max   int      `json:"max_uses" validate:"min=0"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(&sample{Code: "PARTY2024", Types: []string{"image/*", "video/mp4"}}))

	err := Struct(&sample{Code: "a b"})
	require.Error(t, err)
	assert.Equal(t, "code accesscode", err.Error())

	err = Struct(&sample{Code: "PARTY", Types: []string{"jpg"}, Max: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed_types[0] mimetype")
	assert.Contains(t, err.Error(), "max_uses min")
}

func TestStructRejectsNonStruct(t *testing.T) {
	assert.EqualError(t, Struct(nil), "is nil")
	assert.EqualError(t, Struct("x"), "not a struct")
}
