package prover

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// proofCache shares completed and in-flight identity results across
// concurrent callers. Lookups are keyed by the canonical forms of both
// sides plus the assumption-set hash, so the same question under
// different assumptions never collides. Concurrent requests for a key
// with a search already in flight wait for that search instead of
// duplicating it; the completed result is shared read-only.
type proofCache struct {
	mu       sync.RWMutex
	done     map[string]*IdentityResult
	inFlight singleflight.Group
}

func newProofCache() *proofCache {
	return &proofCache{done: make(map[string]*IdentityResult)}
}

// cacheKey builds the composite cache key.
func cacheKey(lhsKey, rhsKey, assumptionHash string) string {
	return lhsKey + "\x00" + rhsKey + "\x00" + assumptionHash
}

// get returns a completed result.
func (c *proofCache) get(key string) (*IdentityResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.done[key]
	return res, ok
}

// do runs fn once per key, no matter how many goroutines ask
// concurrently, and memoizes the result. The cache never stores two
// different results for one key: the first completed result wins and
// every later call observes it.
func (c *proofCache) do(key string, fn func() (*IdentityResult, error)) (*IdentityResult, error) {
	if res, ok := c.get(key); ok {
		return res, nil
	}
	v, err, _ := c.inFlight.Do(key, func() (any, error) {
		if res, ok := c.get(key); ok {
			return res, nil
		}
		res, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.done[key] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*IdentityResult), nil
}

// size reports the number of memoized results.
func (c *proofCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.done)
}
