package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicity(t *testing.T) {
	filter := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("credential-%d", i)
		filter.Add(key)
		assert.True(t, filter.MightContain(key), "inserted key %s reported absent", key)
	}
	// Everything previously added stays present.
	for i := 0; i < 1000; i++ {
		assert.True(t, filter.MightContain(fmt.Sprintf("credential-%d", i)))
	}
	assert.Equal(t, uint64(1000), filter.Count())
}

func TestFalsePositiveRateBound(t *testing.T) {
	const capacity = 10000
	const target = 0.01
	filter := New(capacity, target)
	for i := 0; i < capacity; i++ {
		filter.Add(fmt.Sprintf("member-%d", i))
	}

	falsePositives := 0
	const samples = 20000
	for i := 0; i < samples; i++ {
		if filter.MightContain(fmt.Sprintf("outsider-%d", i)) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(samples)
	assert.LessOrEqual(t, rate, 2*target,
		"observed false-positive rate %v exceeds 2x target", rate)
}

func TestStats(t *testing.T) {
	filter := New(1000, 0.01)
	stats := filter.Stats()
	require.Equal(t, uint64(1000), stats.Capacity)
	assert.NotZero(t, stats.BitSize)
	assert.NotZero(t, stats.HashCount)
	assert.Zero(t, stats.ItemCount)
	assert.Zero(t, stats.CurrentErrorRate)
	assert.Zero(t, stats.FillRatio)

	for i := 0; i < 500; i++ {
		filter.Add(fmt.Sprintf("key-%d", i))
	}
	stats = filter.Stats()
	assert.Equal(t, uint64(500), stats.ItemCount)
	assert.Greater(t, stats.FillRatio, 0.0)
	assert.Less(t, stats.FillRatio, 1.0)
	assert.Greater(t, stats.CurrentErrorRate, 0.0)
	assert.Less(t, stats.CurrentErrorRate, 0.01)
}

func TestDegenerateSizing(t *testing.T) {
	// Bad parameters fall back to safe defaults rather than panicking.
	filter := New(0, 2.0)
	filter.Add("only")
	assert.True(t, filter.MightContain("only"))
}

func TestDeterministicPositions(t *testing.T) {
	a := New(1000, 0.01)
	b := New(1000, 0.01)
	a.Add("stable-key")
	// A filter that never saw the key reports it absent; one that did,
	// present. Same key, same positions, every time.
	assert.True(t, a.MightContain("stable-key"))
	assert.False(t, b.MightContain("stable-key"))
	b.Add("stable-key")
	assert.True(t, b.MightContain("stable-key"))
}
