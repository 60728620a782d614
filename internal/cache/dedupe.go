package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Deduper remembers webhook event ids so redelivered events are handled once.
type Deduper interface {
	// MarkSeen records key and reports whether this is the first sighting within the TTL.
	MarkSeen(ctx context.Context, key string) (bool, error)
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// MemoryDeduper is a bounded TTL set. When full it evicts the oldest entry.
type MemoryDeduper struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryDeduper(config Config) *MemoryDeduper {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}
	return &MemoryDeduper{
		seen:       make(map[string]time.Time),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *MemoryDeduper) MarkSeen(_ context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seenAt, exists := d.seen[key]; exists && now.Sub(seenAt) < d.ttl {
		return false, nil
	}
	if len(d.seen) >= d.maxEntries {
		d.evict(now)
	}
	d.seen[key] = now
	return true, nil
}

func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evict drops expired entries, then the oldest one if the set is still full.
func (d *MemoryDeduper) evict(now time.Time) {
	for key, seenAt := range d.seen {
		if now.Sub(seenAt) >= d.ttl {
			delete(d.seen, key)
		}
	}
	if len(d.seen) < d.maxEntries {
		return
	}

	type pair struct {
		key    string
		seenAt time.Time
	}
	pairs := make([]pair, 0, len(d.seen))
	for key, seenAt := range d.seen {
		pairs = append(pairs, pair{key: key, seenAt: seenAt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].seenAt.Before(pairs[j].seenAt)
	})
	for _, item := range pairs[:len(pairs)-d.maxEntries+1] {
		delete(d.seen, item.key)
	}
}
