package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMust(t *testing.T) {
	t.Run("returns the value", func(t *testing.T) {
		location := Must(time.LoadLocation("UTC"))
		assert.Equal(t, time.UTC.String(), location.String())
	})

	t.Run("panics on error", func(t *testing.T) {
		assert.PanicsWithError(t, "no such zone", func() {
			Must(time.Duration(0), errors.New("no such zone"))
		})
	})
}
