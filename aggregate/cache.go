// Package aggregate caches place averages read from the ratings contract.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/nspcc-dev/place-ratings/score"
)

// DefaultTTL is a default lifetime of cached averages.
const DefaultTTL = 30 * time.Second

// Reader reads place averages. [compat.Reader] satisfies it.
type Reader interface {
	ReadAverage(ctx context.Context, subject uint64) score.Average
	ReadAverages(ctx context.Context, subjects []uint64) map[uint64]score.Average
}

// Prm groups optional parameters of the [Cache].
type Prm struct {
	// TTL is a lifetime of cached averages, DefaultTTL if non-positive.
	// Expired averages are re-read on access.
	TTL time.Duration

	// Clock, [time.Now] if nil.
	Clock func() time.Time
}

type entry struct {
	avg    score.Average
	stored time.Time
	// seq orders writes, later writes have greater seq.
	seq uint64
}

// Cache is a read-through cache of place averages. Only valid averages are
// stored, unavailable ones are re-read on the next access. An expired
// average is still served when its re-read fails. Cache is safe for
// concurrent use.
type Cache struct {
	r     Reader
	ttl   time.Duration
	clock func() time.Time

	mtx sync.RWMutex
	seq uint64
	m   map[uint64]entry
}

// New returns empty Cache reading averages through r.
func New(r Reader, prm Prm) *Cache {
	c := &Cache{
		r:     r,
		ttl:   prm.TTL,
		clock: prm.Clock,
		m:     make(map[uint64]entry),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// TTL returns lifetime of cached averages.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) fresh(e entry) bool {
	return c.clock().Sub(e.stored) < c.ttl
}

// Peek returns cached average without reading it. Expired averages are not
// returned.
func (c *Cache) Peek(subject uint64) (score.Average, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	e, ok := c.m[subject]
	if !ok || !c.fresh(e) {
		return score.Average{}, false
	}
	return e.avg, true
}

// Get returns cached average or reads it if there is none or it has expired.
func (c *Cache) Get(ctx context.Context, subject uint64) score.Average {
	if avg, ok := c.Peek(subject); ok {
		return avg
	}
	return c.Refresh(ctx, subject)
}

// GetAll is a batch version of Get. Missing and expired averages are read
// concurrently.
func (c *Cache) GetAll(ctx context.Context, subjects []uint64) map[uint64]score.Average {
	res := make(map[uint64]score.Average, len(subjects))
	var missing []uint64

	c.mtx.RLock()
	start := c.seq
	for _, s := range subjects {
		if e, ok := c.m[s]; ok && c.fresh(e) {
			res[s] = e.avg
		} else {
			missing = append(missing, s)
		}
	}
	c.mtx.RUnlock()

	if len(missing) == 0 {
		return res
	}

	read := c.r.ReadAverages(ctx, missing)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	for _, s := range missing {
		res[s] = c.update(s, read[s], start)
	}

	return res
}

// Refresh re-reads average of the place. If the read fails, previously cached
// value (if any, even expired) is kept and returned.
func (c *Cache) Refresh(ctx context.Context, subject uint64) score.Average {
	c.mtx.RLock()
	start := c.seq
	c.mtx.RUnlock()

	avg := c.r.ReadAverage(ctx, subject)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.update(subject, avg, start)
}

// update stores avg read after write number start unless a newer value has
// been written in the meantime. Returns the average to serve. Must be
// called under write lock.
func (c *Cache) update(subject uint64, avg score.Average, start uint64) score.Average {
	prev, ok := c.m[subject]
	if ok && prev.seq > start {
		return prev.avg
	}

	if !avg.Valid() {
		if ok {
			return prev.avg
		}
		return avg
	}

	c.put(subject, avg)

	return avg
}

func (c *Cache) put(subject uint64, avg score.Average) {
	c.seq++
	c.m[subject] = entry{avg: avg, stored: c.clock(), seq: c.seq}
}

// Store caches average of the place known to be the latest one, e.g. the
// one reported by the contract event. Invalid averages are ignored.
func (c *Cache) Store(subject uint64, avg score.Average) {
	if !avg.Valid() {
		return
	}
	c.mtx.Lock()
	c.put(subject, avg)
	c.mtx.Unlock()
}
