package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemory()

	_, err := cache.Get("missing")
	require.Error(t, err)

	require.NoError(t, cache.Set("report", "queued"))
	value, err := cache.Get("report")
	require.NoError(t, err)
	assert.Equal(t, "queued", value)
}
