package array

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	t.Run("trims model names", func(t *testing.T) {
		got := Map([]string{" gemini-2.0-flash", "gemini-1.5-flash "}, strings.TrimSpace)
		assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, got)
	})

	t.Run("changes the element type", func(t *testing.T) {
		got := Map([]string{"cow", "goat", "sheep"}, func(s string) int { return len(s) })
		assert.Equal(t, []int{3, 4, 5}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Map([]string{}, strings.ToUpper))
	})
}

func TestFind(t *testing.T) {
	t.Run("returns the first match", func(t *testing.T) {
		got, found := Find([]string{"calf", "cow", "cattle"}, func(s string) bool {
			return strings.HasPrefix(s, "c")
		})
		assert.True(t, found)
		assert.Equal(t, "calf", got)
	})

	t.Run("no match returns the zero value", func(t *testing.T) {
		got, found := Find([]int{1, 2, 3}, func(i int) bool { return i > 3 })
		assert.False(t, found)
		assert.Zero(t, got)
	})
}

func TestFilter(t *testing.T) {
	t.Run("drops blank items", func(t *testing.T) {
		got := Filter([]string{"gemini-1.5-flash", "", "gemini-1.5-pro", ""}, func(s string) bool { return s != "" })
		assert.Equal(t, []string{"gemini-1.5-flash", "gemini-1.5-pro"}, got)
	})

	t.Run("nothing matches", func(t *testing.T) {
		assert.Empty(t, Filter([]int{1, 2}, func(i int) bool { return i > 5 }))
	})
}

func TestUnique(t *testing.T) {
	t.Run("keeps the first occurrence", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "C"}, Unique([]string{"A", "B", "A", "C"}))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Unique([]int{}))
	})
}
