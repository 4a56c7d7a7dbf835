package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReader(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		var r Reader
		assert.Equal(t, "fallback", r.String("VETAI_TEST_UNSET", "fallback"))
		assert.Equal(t, 7, r.Int("VETAI_TEST_UNSET", 7))
		assert.True(t, r.Bool("VETAI_TEST_UNSET", true))
		assert.Equal(t, []string{"a"}, r.List("VETAI_TEST_UNSET", []string{"a"}))
		assert.NoError(t, r.Err())
	})

	t.Run("parses set values", func(t *testing.T) {
		t.Setenv("VETAI_TEST_STRING", "value")
		t.Setenv("VETAI_TEST_INT", " 42 ")
		t.Setenv("VETAI_TEST_BOOL", "true")
		t.Setenv("VETAI_TEST_LIST", "gemini-1.5-flash, ,gemini-1.5-pro ")

		var r Reader
		assert.Equal(t, "value", r.String("VETAI_TEST_STRING", ""))
		assert.Equal(t, 42, r.Int("VETAI_TEST_INT", 0))
		assert.True(t, r.Bool("VETAI_TEST_BOOL", false))
		assert.Equal(t, []string{"gemini-1.5-flash", "gemini-1.5-pro"}, r.List("VETAI_TEST_LIST", nil))
		assert.NoError(t, r.Err())
	})

	t.Run("empty list", func(t *testing.T) {
		t.Setenv("VETAI_TEST_LIST", "")

		var r Reader
		assert.Empty(t, r.List("VETAI_TEST_LIST", []string{"a"}))
	})

	t.Run("malformed values keep defaults", func(t *testing.T) {
		t.Setenv("VETAI_TEST_INT", "many")
		t.Setenv("VETAI_TEST_BOOL", "maybe")

		var r Reader
		assert.Equal(t, 3, r.Int("VETAI_TEST_INT", 3))
		assert.False(t, r.Bool("VETAI_TEST_BOOL", false))
		assert.ErrorContains(t, r.Err(), "2 malformed")
		assert.ErrorContains(t, r.Err(), "VETAI_TEST_INT")
		assert.ErrorContains(t, r.Err(), "VETAI_TEST_BOOL")
	})
}
