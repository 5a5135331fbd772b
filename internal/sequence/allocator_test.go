package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-gateway/internal/logger"
	"registration-gateway/internal/storage"
)

func TestAllocator_Formatting(t *testing.T) {
	allocator := NewAllocator(storage.NewInMemoryStore(), logger.NewLogger())

	numbers, err := allocator.AllocateNext(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002", "0003"}, numbers)

	numbers, err = allocator.AllocateNext(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0004", "0005"}, numbers)
}

func TestAllocator_RejectsNonPositiveCount(t *testing.T) {
	allocator := NewAllocator(storage.NewInMemoryStore(), logger.NewLogger())

	_, err := allocator.AllocateNext(context.Background(), 0)
	assert.Error(t, err)

	_, err = allocator.AllocateNext(context.Background(), -1)
	assert.Error(t, err)
}

// Concurrent allocations must never hand the same number to two callers.
func TestAllocator_ConcurrentDistinct(t *testing.T) {
	allocator := NewAllocator(storage.NewInMemoryStore(), logger.NewLogger())

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan []string, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(count int) {
			defer wg.Done()
			numbers, err := allocator.AllocateNext(context.Background(), count)
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			results <- numbers
		}(1 + w%3)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	var all []string
	for numbers := range results {
		// Each batch is strictly increasing within itself.
		for i := 1; i < len(numbers); i++ {
			assert.Less(t, numbers[i-1], numbers[i])
		}
		for _, n := range numbers {
			assert.False(t, seen[n], "number %s allocated twice", n)
			seen[n] = true
			all = append(all, n)
		}
	}

	// The union is a contiguous run starting at 0001.
	sort.Strings(all)
	assert.Equal(t, "0001", all[0])
	for i, n := range all {
		expected := i + 1
		assert.Equal(t, expected, atoi(t, n))
	}
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9')
		n = n*10 + int(r-'0')
	}
	return n
}
