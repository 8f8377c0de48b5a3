package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// DefaultSize is the number of extracted records kept between runs.
const DefaultSize = 4096

// Loader memoizes extraction results keyed by identifier, size and
// modification time, so unchanged files are not re-read on watch re-runs.
// Failed loads are never cached.
type Loader struct {
	next catalog.Loader

	mu    sync.Mutex
	cache *lru.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLoader wraps next with an LRU of at most size entries.
func NewLoader(next catalog.Loader, size int) *Loader {
	if size <= 0 {
		size = DefaultSize
	}
	return &Loader{next: next, cache: lru.New(size)}
}

// Load implements catalog.Loader.
func (l *Loader) Load(ctx context.Context, f telemetry.SourceFile) (telemetry.FileRecord, error) {
	key := cacheKey(f)

	l.mu.Lock()
	v, ok := l.cache.Get(key)
	l.mu.Unlock()
	if ok {
		l.hits.Add(1)
		return v.(telemetry.FileRecord), nil
	}

	l.misses.Add(1)
	rec, err := l.next.Load(ctx, f)
	if err != nil {
		return rec, err
	}

	l.mu.Lock()
	l.cache.Add(key, rec)
	l.mu.Unlock()
	return rec, nil
}

// Stats returns the hit and miss counters since creation.
func (l *Loader) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

// Len returns the number of cached records.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}

func cacheKey(f telemetry.SourceFile) string {
	return f.VehicleID + "\x00" + string(f.StreamType) + "\x00" + f.Identifier + "\x00" +
		strconv.FormatInt(f.Size, 10) + "\x00" + strconv.FormatInt(f.ModTime.UnixNano(), 10)
}
