package common

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrf(t *testing.T) {
	err := Errf(http.StatusNotFound, "job %d not found", 7)

	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "job 7 not found", err.Error())
	assert.Nil(t, err.Fields)
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("complete job 3: %w", ErrNotFound)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrInvalidTransition)
}
