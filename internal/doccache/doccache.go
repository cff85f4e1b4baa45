// Package doccache memoizes parsed and validated query documents keyed by
// a hash of the request text.
package doccache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/singleflight"

	language "github.com/hanpama/gqlexec/internal/language"
)

// DefaultMaxEntries is used when Config.MaxEntries is zero.
const DefaultMaxEntries = 1000

// Config controls retention.
type Config struct {
	// MaxEntries bounds the number of cached documents; the least recently
	// used entry is evicted first. Zero means DefaultMaxEntries.
	MaxEntries int `yaml:"max_entries"`

	// IdleTTL evicts entries that were not read for this long. Every hit
	// restarts the timer. Zero disables idle eviction.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// Entry is the compiled form of one request text. Entries are never
// mutated once returned, so an execution may keep using one after it was
// evicted.
type Entry struct {
	Key        uint64
	Text       string
	Document   *language.QueryDocument
	ParseError *gqlerror.Error
	Violations gqlerror.List
	CachedAt   time.Time

	generation uint64
}

// Valid reports whether the document parsed and passed validation.
func (e *Entry) Valid() bool {
	return e.ParseError == nil && len(e.Violations) == 0
}

// CompileFunc parses and validates text. It must always return an entry;
// failures are recorded on the entry and cached like successes.
type CompileFunc func(ctx context.Context, text string) *Entry

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries    int
	Hits       uint64
	Misses     uint64
	Shared     uint64 // waited for another request's compile
	Evictions  uint64
	Collisions uint64
}

// Cache is safe for concurrent use. At most one compile runs per distinct
// text at a time; concurrent requests for the same text wait for it.
type Cache struct {
	compile    CompileFunc
	hash       func(string) uint64
	lru        *expirable.LRU[uint64, *Entry]
	ttl        time.Duration
	flight     singleflight.Group
	generation atomic.Uint64

	hits       atomic.Uint64
	misses     atomic.Uint64
	shared     atomic.Uint64
	evictions  atomic.Uint64
	collisions atomic.Uint64
}

func New(cfg Config, compile CompileFunc) *Cache {
	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	c := &Cache{compile: compile, ttl: cfg.IdleTTL, hash: xxhash.Sum64String}
	c.lru = expirable.NewLRU[uint64, *Entry](size, func(uint64, *Entry) {
		c.evictions.Add(1)
	}, cfg.IdleTTL)
	return c
}

// GetOrParse returns the entry for text. fromCache is false only for the
// caller that actually compiled it.
func (c *Cache) GetOrParse(ctx context.Context, text string) (entry *Entry, fromCache bool) {
	return c.GetOrParseAt(ctx, c.generation.Load(), text)
}

// Generation reports the current cache generation. Purge advances it.
func (c *Cache) Generation() uint64 { return c.generation.Load() }

// GetOrParseAt is GetOrParse pinned to generation gen, as read from
// Generation together with whatever the compile depends on. An entry from
// another generation is never returned, and a compile for a generation
// that has since been purged is not stored.
func (c *Cache) GetOrParseAt(ctx context.Context, gen uint64, text string) (entry *Entry, fromCache bool) {
	key := c.hash(text)

	if e, ok := c.lru.Get(key); ok && e.generation == gen {
		if e.Text == text {
			c.hits.Add(1)
			c.touch(key, e)
			return e, true
		}
		return c.compileUncached(ctx, key, text, gen), false
	}

	ran, compiled := false, false
	v, _, _ := c.flight.Do(flightKey(key, gen), func() (any, error) {
		ran = true
		// A flight for the same key may have finished since our lookup.
		if e, ok := c.lru.Peek(key); ok && e.generation == gen {
			return e, nil
		}
		compiled = true
		c.misses.Add(1)
		e := c.finish(c.compile(ctx, text), key, text, gen)
		if c.generation.Load() == gen {
			c.lru.Add(key, e)
		}
		return e, nil
	})
	e := v.(*Entry)
	if e.Text != text {
		return c.compileUncached(ctx, key, text, gen), false
	}
	switch {
	case !ran:
		c.shared.Add(1)
	case !compiled:
		c.hits.Add(1)
	}
	return e, !compiled
}

// touch restarts the idle timer of a hit entry.
func (c *Cache) touch(key uint64, e *Entry) {
	if c.ttl > 0 {
		c.lru.Add(key, e)
	}
}

// compileUncached serves a text whose hash collides with a different
// cached text. The result is not stored.
func (c *Cache) compileUncached(ctx context.Context, key uint64, text string, gen uint64) *Entry {
	c.collisions.Add(1)
	c.misses.Add(1)
	return c.finish(c.compile(ctx, text), key, text, gen)
}

func (c *Cache) finish(e *Entry, key uint64, text string, gen uint64) *Entry {
	if e == nil {
		e = &Entry{}
	}
	e.Key = key
	e.Text = text
	e.CachedAt = time.Now()
	e.generation = gen
	return e
}

// Purge drops every entry. Compiles still in flight finish for their
// callers but are not stored.
func (c *Cache) Purge() {
	c.generation.Add(1)
	c.lru.Purge()
}

func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) Stats() Stats {
	return Stats{
		Entries:    c.lru.Len(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Shared:     c.shared.Load(),
		Evictions:  c.evictions.Load(),
		Collisions: c.collisions.Load(),
	}
}

func flightKey(key, gen uint64) string {
	return strconv.FormatUint(key, 16) + "/" + strconv.FormatUint(gen, 10)
}
