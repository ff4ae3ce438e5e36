package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, ExtractKeywords("", 5))
	})

	t.Run("drops stopwords and short words", func(t *testing.T) {
		got := ExtractKeywords("the cat ran with incredible determination from the garden", 10)
		assert.NotContains(t, got, "the")
		assert.NotContains(t, got, "cat")
		assert.NotContains(t, got, "with")
		assert.Contains(t, got, "incredible")
		assert.Contains(t, got, "determination")
		assert.Contains(t, got, "garden")
	})

	t.Run("drops non alphabetic words", func(t *testing.T) {
		got := ExtractKeywords("summer2024 vacation plans", 10)
		assert.NotContains(t, got, "summer2024")
		assert.Contains(t, got, "vacation")
		assert.Contains(t, got, "plans")
	})

	t.Run("ranks by frequency", func(t *testing.T) {
		got := ExtractKeywords("ocean ocean ocean waves waves sunset", 2)
		assert.Equal(t, []string{"ocean", "waves"}, got)
	})

	t.Run("caps result length", func(t *testing.T) {
		got := ExtractKeywords("alpha bravo charlie delta echo foxtrot golf", 3)
		assert.Len(t, got, 3)
	})
}

func TestBuildQuery(t *testing.T) {
	t.Run("sheet keywords take priority", func(t *testing.T) {
		query := BuildQuery("Morning routines", "fitness, wellness", "", "stretching stretching stretching", "")
		terms := strings.Fields(query)
		assert.Equal(t, "fitness", terms[0])
		assert.Equal(t, "wellness", terms[1])
	})

	t.Run("caps at five terms", func(t *testing.T) {
		query := BuildQuery(
			"Travel destinations nobody visits",
			"adventure, hiking, mountains",
			"remote villages hidden valleys",
			"exploring wilderness camping outdoors scenery landscapes",
			"",
		)
		assert.LessOrEqual(t, len(strings.Fields(query)), 5)
	})

	t.Run("fallback when nothing usable", func(t *testing.T) {
		assert.Equal(t, fallbackQuery, BuildQuery("", "", "", "", ""))
	})

	t.Run("scene context contributes terms", func(t *testing.T) {
		query := BuildQuery("", "", "", "", "surfing paradise beaches")
		assert.Contains(t, query, "surfing")
	})
}
