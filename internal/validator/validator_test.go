package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" binding:"required"`
	Items []string `json:"items" binding:"required,min=2"`
}

func TestStructTranslatesUsingJSONNames(t *testing.T) {
	err := Struct(&sample{Items: []string{"a"}})
	require.Error(t, err)

	fields := TranslateErrors(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "items")
}

func TestStructAcceptsValid(t *testing.T) {
	assert.NoError(t, Struct(&sample{Name: "x", Items: []string{"a", "b"}}))
}

func TestTranslateErrorsNonValidation(t *testing.T) {
	fields := TranslateErrors(errors.New("unexpected EOF"))
	assert.Equal(t, map[string]string{"detail": "unexpected EOF"}, fields)
}
