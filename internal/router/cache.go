package router

import (
	"sort"
	"strings"
	"sync"

	"relay/pkg/models"
)

// decisionCache memoizes routing decisions. It is purely an
// optimization; recomputing a decision is always safe.
type decisionCache struct {
	mu      sync.RWMutex
	entries map[string]models.RouteDecision
}

func newDecisionCache() *decisionCache {
	return &decisionCache{
		entries: make(map[string]models.RouteDecision),
	}
}

func (c *decisionCache) Get(key string) (models.RouteDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	decision, ok := c.entries[key]
	return decision, ok
}

func (c *decisionCache) Set(key string, decision models.RouteDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = decision
}

func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.RouteDecision)
}

func (c *decisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey folds everything a decision depends on: event name, actor,
// segment, and the available provider set.
func cacheKey(event models.Event, available []string) string {
	providers := make([]string, len(available))
	copy(providers, available)
	sort.Strings(providers)

	var b strings.Builder
	b.WriteString(event.Name)
	b.WriteByte('|')
	b.WriteString(event.Identifier())
	b.WriteByte('|')
	b.WriteString(event.UserSegment())
	b.WriteByte('|')
	b.WriteString(strings.Join(providers, ","))
	return b.String()
}
