package ueba

import (
	"sync"
)

// VerdictCache retains the latest verdict per vehicle for on-demand queries.
// Safe for concurrent use.
type VerdictCache struct {
	mu       sync.RWMutex
	verdicts map[string]Verdict
}

// NewVerdictCache returns an empty cache.
func NewVerdictCache() *VerdictCache {
	return &VerdictCache{verdicts: make(map[string]Verdict)}
}

// Put stores the latest verdict for a vehicle.
func (c *VerdictCache) Put(vehicleID string, v Verdict) {
	c.mu.Lock()
	c.verdicts[vehicleID] = v
	c.mu.Unlock()
}

// Get returns the latest verdict for a vehicle.
func (c *VerdictCache) Get(vehicleID string) (Verdict, bool) {
	c.mu.RLock()
	v, ok := c.verdicts[vehicleID]
	c.mu.RUnlock()
	return v, ok
}
