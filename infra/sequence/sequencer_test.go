package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(10)
	assert.Equal(t, uint64(11), s.Next())
	assert.Equal(t, uint64(12), s.Next())
	assert.Equal(t, uint64(12), s.Current())
}

func TestObserve(t *testing.T) {
	s := New(0)
	s.Observe(40)
	assert.Equal(t, uint64(41), s.Next())
	s.Observe(5)
	assert.Equal(t, uint64(41), s.Current())
}

func TestConcurrentNextUnique(t *testing.T) {
	s := New(0)
	const n = 8
	seen := make([][]uint64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				seen[i] = append(seen[i], s.Next())
			}
		}(i)
	}
	wg.Wait()

	all := map[uint64]bool{}
	for _, ids := range seen {
		for _, id := range ids {
			assert.False(t, all[id], "duplicate id %d", id)
			all[id] = true
		}
	}
	assert.Len(t, all, n*1000)
	assert.Equal(t, uint64(n*1000), s.Current())
}
