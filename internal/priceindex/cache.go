// Package priceindex implements the bounded-memory LRU cache mapping token
// mint to latest validated price observation (§4.4). Per spec.md §9's
// design note, this is a hash map plus an intrusive doubly linked list —
// count-bounded ecosystem LRU packages don't support a byte-footprint
// ceiling with percentage-based cleanup, so this one structure is built
// directly on container/list rather than a third-party cache library.
package priceindex

import (
	"container/list"
	"sync"
	"time"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/rs/zerolog"
)

// bytesPerEntry, mapOverhead, and keyRefOverhead are the fixed per-entry
// footprint constants from spec.md §4.4, chosen as a stable upper bound
// for this implementation's Observation + map-bucket + list-node layout.
const (
	bytesPerEntry  = 400
	mapOverhead    = 24
	keyRefOverhead = 50
	perEntryBytes  = bytesPerEntry + mapOverhead + keyRefOverhead // 474
)

// Stats is the usage snapshot returned by Cache.Stats.
type Stats struct {
	UsageBytes    int64
	CeilingBytes  int64
	Entries       int
	UsagePercent  float64
	OldestStoredAgeMS int64
	NewestStoredAgeMS int64
}

type entry struct {
	mint string
	obs  models.Observation
}

// Cache is a thread-safe, byte-budgeted LRU keyed by token mint.
//
// Whitelist reports whether a programId is a supported builder; observations
// with a non-whitelisted programId are refused by Put, since D's invariants
// (§3, §8 invariant 1) require programId to be in the current registry.
type Cache struct {
	mu               sync.RWMutex
	ceilingBytes     int64
	cleanupThreshold float64 // fraction of ceiling that triggers cleanup (default 0.85)
	targetFraction   float64 // fraction of ceiling cleanup drains down to (0.7 per spec)
	whitelist        func(programID string) bool
	log              zerolog.Logger

	ll    *list.List               // front = most-recently-used
	index map[string]*list.Element // mint -> node in ll, node.Value is *entry
}

// Config configures a new Cache.
type Config struct {
	CeilingBytes     int64
	CleanupThreshold float64 // default 0.85 if zero
	Whitelist        func(programID string) bool
	Logger           zerolog.Logger
}

// New constructs an empty Cache.
func New(cfg Config) *Cache {
	threshold := cfg.CleanupThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	return &Cache{
		ceilingBytes:     cfg.CeilingBytes,
		cleanupThreshold: threshold,
		targetFraction:   0.7,
		whitelist:        cfg.Whitelist,
		log:              cfg.Logger,
		ll:               list.New(),
		index:            make(map[string]*list.Element),
	}
}

// Put inserts or overwrites the observation for obs.Mint, promoting it to
// most-recently-used, then, if the footprint exceeds cleanupThreshold of the
// ceiling, evicts from the least-recently-used end until it is back under
// the cleanup target. Put refuses observations that fail the §3 invariants.
func (c *Cache) Put(obs models.Observation) bool {
	if !obs.Valid(c.whitelist) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[obs.Mint]; ok {
		el.Value.(*entry).obs = obs
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{mint: obs.Mint, obs: obs})
		c.index[obs.Mint] = el
	}

	c.cleanupLocked()
	return true
}

// Get returns the current observation for mint and promotes it to
// most-recently-used; ok is false if mint is absent (never evicted, or
// evicted already).
func (c *Cache) Get(mint string) (obs models.Observation, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.index[mint]
	if !found {
		return models.Observation{}, false
	}
	e := el.Value.(*entry)
	e.obs.LastAccess = nowMS()
	c.ll.MoveToFront(el)
	return e.obs, true
}

// GetAll returns a snapshot of every entry without changing access order.
func (c *Cache) GetAll() []models.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Observation, 0, len(c.index))
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).obs)
	}
	return out
}

// Remove deletes mint's entry, if present.
func (c *Cache) Remove(mint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[mint]; ok {
		c.ll.Remove(el)
		delete(c.index, mint)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.index = make(map[string]*list.Element)
}

// Stats reports current usage.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.index)
	usage := int64(n) * perEntryBytes
	var pct float64
	if c.ceilingBytes > 0 {
		pct = float64(usage) / float64(c.ceilingBytes) * 100
	}

	var oldest, newest int64
	if n > 0 {
		now := nowMS()
		back := c.ll.Back().Value.(*entry)  // least-recently-inserted-or-touched
		front := c.ll.Front().Value.(*entry)
		oldest = now - back.obs.StoredAt
		newest = now - front.obs.StoredAt
	}

	return Stats{
		UsageBytes:        usage,
		CeilingBytes:      c.ceilingBytes,
		Entries:           n,
		UsagePercent:      pct,
		OldestStoredAgeMS: oldest,
		NewestStoredAgeMS: newest,
	}
}

// cleanupLocked evicts from the tail until usage drops to the target
// fraction of the ceiling. Caller must hold c.mu.
func (c *Cache) cleanupLocked() {
	if c.ceilingBytes <= 0 {
		return
	}
	usage := int64(len(c.index)) * perEntryBytes
	if usage <= int64(float64(c.ceilingBytes)*c.cleanupThreshold) {
		return
	}

	target := int64(float64(c.ceilingBytes) * c.targetFraction)
	evicted := 0
	for usage > target {
		back := c.ll.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry)
		c.ll.Remove(back)
		delete(c.index, e.mint)
		usage -= perEntryBytes
		evicted++
	}
	if evicted > 0 {
		c.log.Debug().Int("evicted", evicted).Int64("usage_bytes", usage).Msg("price index eviction")
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
