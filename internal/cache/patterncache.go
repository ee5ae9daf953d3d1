// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package cache

import (
	"github.com/spectrumlab/propstudy/internal/study"
)

// patternKey identifies a decoded vertical pattern: the owning source and
// the modification counter it was decoded under. A parameter change bumps
// the counter and naturally orphans the stale entry.
type patternKey struct {
	src      study.SourceKey
	modCount int32
}

type patternEntry struct {
	key     patternKey
	pattern *study.MatrixPattern
	prev    *patternEntry
	next    *patternEntry
}

// patternCache is a fixed-capacity LRU of decoded matrix patterns, owned
// by the Session and passed through the call chain. Matrix patterns are
// the largest variable blocks in a fingerprint file; a composite source's
// fingerprint is re-validated many times per run and this keeps each
// constituent pattern decoded once. O(1) get/add via hashmap plus
// doubly-linked list.
//
// Not locked: the session's synchronous invocation model means at most
// one goroutine touches it at a time.
type patternCache struct {
	capacity int
	items    map[patternKey]*patternEntry
	head     *patternEntry // most recently used
	tail     *patternEntry // least recently used
}

const defaultPatternCacheSize = 256

func newPatternCache(capacity int) *patternCache {
	if capacity <= 0 {
		capacity = defaultPatternCacheSize
	}
	c := &patternCache{
		capacity: capacity,
		items:    make(map[patternKey]*patternEntry, capacity),
		head:     &patternEntry{},
		tail:     &patternEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// get returns the cached pattern for (src, modCount), or nil. Hits move
// to the front.
func (c *patternCache) get(src study.SourceKey, modCount int32) *study.MatrixPattern {
	entry, ok := c.items[patternKey{src, modCount}]
	if !ok {
		return nil
	}
	c.moveToFront(entry)
	return entry.pattern
}

// add stores a decoded pattern, evicting the least recently used entry
// when over capacity.
func (c *patternCache) add(src study.SourceKey, modCount int32, p *study.MatrixPattern) {
	k := patternKey{src, modCount}
	if entry, ok := c.items[k]; ok {
		entry.pattern = p
		c.moveToFront(entry)
		return
	}

	entry := &patternEntry{key: k, pattern: p}
	c.addToFront(entry)
	c.items[k] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// remove drops every entry for a source, regardless of counter. Called
// when a source's cache family is discarded.
func (c *patternCache) remove(src study.SourceKey) {
	for k, entry := range c.items {
		if k.src == src {
			c.unlink(entry)
			delete(c.items, k)
		}
	}
}

func (c *patternCache) len() int {
	return len(c.items)
}

func (c *patternCache) addToFront(entry *patternEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *patternCache) moveToFront(entry *patternEntry) {
	c.unlink(entry)
	c.addToFront(entry)
}

func (c *patternCache) unlink(entry *patternEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *patternCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.unlink(oldest)
	delete(c.items, oldest.key)
}
