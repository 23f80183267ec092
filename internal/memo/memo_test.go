package memo

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableKey struct {
	generation uint64
	category   string
	sort       string
}

func TestCache_ReusesValueForEqualKey(t *testing.T) {
	var c Cache[tableKey, []int]
	calls := 0
	compute := func() ([]int, error) {
		calls++
		return []int{calls}, nil
	}

	k := tableKey{1, "error", "-total"}
	v1, err := c.Get(k, compute)
	require.NoError(t, err)
	v2, err := c.Get(tableKey{1, "error", "-total"}, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, v1, v2)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCache_RecomputesOnAnyKeyChange(t *testing.T) {
	var c Cache[tableKey, int]
	calls := 0
	compute := func() (int, error) {
		calls++
		return calls, nil
	}

	keys := []tableKey{
		{1, "error", "-total"},
		{2, "error", "-total"},
		{2, "transaction", "-total"},
		{2, "transaction", "project"},
		{1, "error", "-total"},
	}
	for i, k := range keys {
		v, err := c.Get(k, compute)
		require.NoError(t, err)
		assert.Equal(t, i+1, v)
	}
	assert.Equal(t, len(keys), calls)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	var c Cache[string, int]
	boom := errors.New("boom")

	_, err := c.Get("k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.Get("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCache_Concurrent(t *testing.T) {
	var c Cache[int, int]
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			v, err := c.Get(k%3, func() (int, error) { return k % 3 * 10, nil })
			assert.NoError(t, err)
			assert.Equal(t, k%3*10, v)
		}(i)
	}
	wg.Wait()
}
