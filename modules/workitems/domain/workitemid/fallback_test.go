package workitemid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewFallback_IsNeverNewFormat(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewFallback("WI", now)
		require.True(t, strings.HasPrefix(id, "WI-1742032800000-"), id)
		require.True(t, IsFallback(id), id)
		require.False(t, IsNewFormat(id), id)
		seen[id] = true
	}
	require.Greater(t, len(seen), 1, "random suffix should vary")
}

func TestNewFallback_SanitizesPrefix(t *testing.T) {
	now := time.Now()
	for _, prefix := range []string{"", "  ", "12/", "A1"} {
		id := NewFallback(prefix, now)
		require.True(t, strings.HasPrefix(id, DefaultFallbackPrefix+"-"), id)
		require.True(t, IsFallback(id))
	}
	require.True(t, strings.HasPrefix(NewFallback("TASK", now), "TASK-"))
}

func TestIsFallback(t *testing.T) {
	require.False(t, IsFallback("15/03/25/001"))
	require.False(t, IsFallback("legacy-123"))
	require.True(t, IsFallback("WI-1-ABCDEF"))
}
