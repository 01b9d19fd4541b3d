package service

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceGenerator_Format(t *testing.T) {
	t.Parallel()
	g := NewReferenceGenerator()

	ref := g.Next(time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC))
	assert.Regexp(t, referencePattern, ref)
	assert.Equal(t, "TXN-20240301123045123-0000-", ref[:27])
}

func TestReferenceGenerator_MonotonicWhenClockRepeatsOrStepsBack(t *testing.T) {
	t.Parallel()
	g := NewReferenceGenerator()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	refs := []string{
		g.Next(now),
		g.Next(now),
		g.Next(now.Add(-time.Second)),
		g.Next(now.Add(time.Millisecond)),
	}

	assert.Equal(t, "0000", refs[0][22:26])
	assert.Equal(t, "0001", refs[1][22:26])
	assert.Equal(t, "0002", refs[2][22:26])
	assert.Equal(t, "0000", refs[3][22:26])
	assert.True(t, sort.StringsAreSorted(refs))
}

func TestReferenceGenerator_ConcurrentUnique(t *testing.T) {
	t.Parallel()
	g := NewReferenceGenerator()
	now := time.Now()

	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref := g.Next(now)
			mu.Lock()
			seen[ref] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}
