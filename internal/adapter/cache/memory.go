// Package cache provides in-process ResultStore implementations used when no
// shared Redis store is configured.
package cache

import (
	"sync"
	"time"

	"github.com/Buringskul/cv-feedback-bot/internal/domain"
)

// Memory is a bounded in-process result store with per-entry expiry.
// Eviction is FIFO on insertion order. It is safe for concurrent use.
type Memory struct {
	capacity int
	now      func() time.Time

	mu  sync.Mutex
	m   map[string]memoryEntry
	ord []string
}

type memoryEntry struct {
	v       domain.AnalysisResult
	expires time.Time
}

// NewMemory returns a Memory holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{capacity: capacity, now: time.Now, m: make(map[string]memoryEntry), ord: make([]string, 0, capacity)}
}

// Get returns the live entry for key.
func (c *Memory) Get(_ domain.Context, key string) (domain.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return domain.AnalysisResult{}, false
	}
	if !c.now().Before(e.expires) {
		c.removeLocked(key)
		return domain.AnalysisResult{}, false
	}
	return cloneResult(e.v), true
}

// Set stores v under key for ttl. Non-positive ttl uses the 7-day default.
func (c *Memory) Set(_ domain.Context, key string, v domain.AnalysisResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{v: cloneResult(v), expires: c.now().Add(ttl)}
	if _, exists := c.m[key]; exists {
		c.m[key] = e
		return
	}
	if len(c.ord) >= c.capacity {
		old := c.ord[0]
		c.ord = c.ord[1:]
		delete(c.m, old)
	}
	c.m[key] = e
	c.ord = append(c.ord, key)
}

// Available always reports true.
func (c *Memory) Available() bool { return true }

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *Memory) removeLocked(key string) {
	delete(c.m, key)
	for i, k := range c.ord {
		if k == key {
			c.ord = append(c.ord[:i], c.ord[i+1:]...)
			return
		}
	}
}

// cloneResult copies the slices so callers cannot mutate stored entries.
func cloneResult(v domain.AnalysisResult) domain.AnalysisResult {
	v.Strengths = cloneStrings(v.Strengths)
	v.Improvements = cloneStrings(v.Improvements)
	v.ATSTips = cloneStrings(v.ATSTips)
	return v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

const defaultTTL = 7 * 24 * time.Hour

// Noop never stores anything; every lookup misses.
type Noop struct{}

func (Noop) Get(domain.Context, string) (domain.AnalysisResult, bool)           { return domain.AnalysisResult{}, false }
func (Noop) Set(domain.Context, string, domain.AnalysisResult, time.Duration) {}
func (Noop) Available() bool                                                   { return false }
