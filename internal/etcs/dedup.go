// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package etcs

import (
	"fmt"
	"sync"
	"time"
)

const dedupTTL = 5 * time.Second

// DedupCache tracks recently-seen inbound message keys so a duplicate
// delivery within the TTL window is silently dropped (§4.10). Key
// precedence is msg_id, else "NID:SEQUENCE", else "NID".
type DedupCache struct {
	mu      sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewDedupCache constructs an empty cache. now defaults to time.Now.
func NewDedupCache(now func() time.Time) *DedupCache {
	if now == nil {
		now = time.Now
	}
	return &DedupCache{lastSeen: map[string]time.Time{}, now: now}
}

// DedupKey derives the lookup key for a decoded message per §3's Dedup
// Cache definition.
func DedupKey(msgID string, nid int, sequence int64, hasSequence bool) string {
	if msgID != "" {
		return msgID
	}
	if hasSequence {
		return fmt.Sprintf("%d:%d", nid, sequence)
	}
	return fmt.Sprintf("%d", nid)
}

// Seen reports whether key was already recorded within the TTL window,
// recording it either way and lazily evicting expired entries.
func (c *DedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, t := range c.lastSeen {
		if now.Sub(t) > dedupTTL {
			delete(c.lastSeen, k)
		}
	}

	last, ok := c.lastSeen[key]
	c.lastSeen[key] = now
	return ok && now.Sub(last) <= dedupTTL
}
