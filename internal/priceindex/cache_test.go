package priceindex

import (
	"fmt"
	"testing"
	"time"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitelistOf(programs ...string) func(string) bool {
	set := make(map[string]bool, len(programs))
	for _, p := range programs {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func obsFor(mint string, price float64) models.Observation {
	return models.Observation{
		Mint:      mint,
		Pool:      "pool-" + mint,
		AvgPrice:  price,
		ProgramID: "P",
		Slot:      "1",
		StoredAt:  time.Now().UnixMilli(),
	}
}

func TestPutGet_Basic(t *testing.T) {
	c := New(Config{CeilingBytes: 1 << 20, Whitelist: whitelistOf("P")})

	require.True(t, c.Put(obsFor("M", 2000)))

	got, ok := c.Get("M")
	require.True(t, ok)
	assert.Equal(t, 2000.0, got.AvgPrice)
	assert.Equal(t, "pool-M", got.Pool)
}

func TestPut_LastWriteWins(t *testing.T) {
	c := New(Config{CeilingBytes: 1 << 20, Whitelist: whitelistOf("P")})

	require.True(t, c.Put(obsFor("M", 2000)))
	require.True(t, c.Put(obsFor("M", 2500)))

	got, ok := c.Get("M")
	require.True(t, ok)
	assert.Equal(t, 2500.0, got.AvgPrice)

	// Overwriting an existing key must not double the entry count.
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestPut_RejectsInvalidObservation(t *testing.T) {
	c := New(Config{CeilingBytes: 1 << 20, Whitelist: whitelistOf("P")})

	assert.False(t, c.Put(models.Observation{Mint: "M", Pool: "pool", AvgPrice: 0, ProgramID: "P"}))
	assert.False(t, c.Put(models.Observation{Mint: "M", Pool: "", AvgPrice: 1, ProgramID: "P"}))
	assert.False(t, c.Put(models.Observation{Mint: "M", Pool: "pool", AvgPrice: 1, ProgramID: "NOT_WHITELISTED"}))

	_, ok := c.Get("M")
	assert.False(t, ok)
}

func TestGet_AbsentAfterEviction(t *testing.T) {
	// Ceiling sized for exactly 100 entries' worth at the 474-byte estimate;
	// a cleanup threshold of 1.0 lets the cache fill to the ceiling before
	// any eviction runs.
	ceiling := int64(100 * perEntryBytes)
	c := New(Config{CeilingBytes: ceiling, CleanupThreshold: 1.0, Whitelist: whitelistOf("P")})

	for i := 0; i < 100; i++ {
		require.True(t, c.Put(obsFor(fmt.Sprintf("M%d", i), 1)))
	}
	// 101st insertion should trigger eviction of the least-recently-used (M0).
	require.True(t, c.Put(obsFor("M100", 1)))

	_, ok := c.Get("M0")
	assert.False(t, ok, "least-recently-used entry should have been evicted")

	stats := c.Stats()
	assert.LessOrEqual(t, stats.UsageBytes, ceiling)
	// Cleanup drains to 0.7 of ceiling.
	assert.LessOrEqual(t, float64(stats.Entries), 0.7*100+1)
}

func TestEvictionOrder_RespectsAccessOrder(t *testing.T) {
	// 10 entries stay under 85% of a 12-entry ceiling, so none is evicted
	// before M0 is touched.
	ceiling := int64(12 * perEntryBytes)
	c := New(Config{CeilingBytes: ceiling, CleanupThreshold: 0.85, Whitelist: whitelistOf("P")})

	for i := 0; i < 10; i++ {
		require.True(t, c.Put(obsFor(fmt.Sprintf("M%d", i), 1)))
	}
	// Touch M0 so it is no longer the least-recently-used entry.
	_, _ = c.Get("M0")

	// Push past the cleanup threshold.
	for i := 10; i < 13; i++ {
		require.True(t, c.Put(obsFor(fmt.Sprintf("M%d", i), 1)))
	}

	_, ok := c.Get("M0")
	assert.True(t, ok, "recently-accessed entry should survive eviction")
}

func TestRemoveAndClear(t *testing.T) {
	c := New(Config{CeilingBytes: 1 << 20, Whitelist: whitelistOf("P")})
	require.True(t, c.Put(obsFor("M", 1)))

	c.Remove("M")
	_, ok := c.Get("M")
	assert.False(t, ok)

	require.True(t, c.Put(obsFor("A", 1)))
	require.True(t, c.Put(obsFor("B", 1)))
	c.Clear()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestGetAll_DoesNotChangeAccessOrder(t *testing.T) {
	c := New(Config{CeilingBytes: 1 << 20, Whitelist: whitelistOf("P")})
	require.True(t, c.Put(obsFor("A", 1)))
	require.True(t, c.Put(obsFor("B", 2)))

	all := c.GetAll()
	assert.Len(t, all, 2)

	// GetAll must not promote B or A in LRU order; direct internal check via
	// a forced eviction confirms A (pushed first) is still the tail.
	ceiling := int64(3 * perEntryBytes)
	c2 := New(Config{CeilingBytes: ceiling, CleanupThreshold: 0.01, Whitelist: whitelistOf("P")})
	require.True(t, c2.Put(obsFor("A", 1)))
	require.True(t, c2.Put(obsFor("B", 2)))
	_ = c2.GetAll()
	require.True(t, c2.Put(obsFor("C", 3)))

	_, ok := c2.Get("A")
	assert.False(t, ok, "GetAll must not have promoted A out of LRU tail position")
}

func TestCeiling1MB_With10000Trades(t *testing.T) {
	ceiling := int64(1 << 20)
	c := New(Config{CeilingBytes: ceiling, Whitelist: whitelistOf("P")})

	// afterCleanup is the entry count right after the most recent cleanup pass.
	afterCleanup, prev := -1, 0
	for i := 0; i < 10000; i++ {
		c.Put(obsFor(fmt.Sprintf("M%d", i), 1))
		n := c.Stats().Entries
		if n < prev {
			afterCleanup = n
		}
		prev = n
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.UsageBytes, ceiling)

	expectedFloor := int(0.7 * float64(ceiling) / perEntryBytes)
	assert.InDelta(t, expectedFloor, afterCleanup, 2)
}
