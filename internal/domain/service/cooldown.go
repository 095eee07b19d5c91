package service

import "time"

// cooldownSet is an in-memory TTL set over alert dedup keys. A key admitted
// once stays suppressed until its cooldown expires; expired keys are evicted
// in insertion order to bound memory.
type cooldownSet struct {
	m    map[string]time.Time // key -> expiry
	q    []cooldownItem       // insertion order
	head int
}

type cooldownItem struct {
	key    string
	expiry time.Time
}

func newCooldownSet() *cooldownSet {
	return &cooldownSet{m: map[string]time.Time{}}
}

// seenOrAdd returns true if key is present and not expired at now.
// Otherwise it records key with the given expiry and returns false.
func (c *cooldownSet) seenOrAdd(key string, expiry, now time.Time) bool {
	if exp, ok := c.m[key]; ok && !exp.Before(now) {
		return true
	}
	c.m[key] = expiry
	c.q = append(c.q, cooldownItem{key: key, expiry: expiry})
	return false
}

// evict removes expired keys.
func (c *cooldownSet) evict(now time.Time) {
	for c.head < len(c.q) {
		it := c.q[c.head]
		if !it.expiry.Before(now) {
			break
		}
		// Only delete if the map still holds this expiry; a refreshed key
		// has a newer queue entry behind it.
		if exp, ok := c.m[it.key]; ok && exp.Equal(it.expiry) {
			delete(c.m, it.key)
		}
		c.head++
	}
	if c.head > 4096 && c.head*2 > len(c.q) {
		newQ := make([]cooldownItem, 0, len(c.q)-c.head)
		newQ = append(newQ, c.q[c.head:]...)
		c.q = newQ
		c.head = 0
	}
}
