// Package groupkey assigns stable ordinals to CSV group keys.
package groupkey

import (
	"slices"
	"strings"

	"github.com/arloliu/influxwire/internal/hash"
)

// Tracker maps group-key tuples to dense ordinals in first-seen order.
//
// Keys are identified by their xxHash64. When two different tuples share a hash,
// the collision flag is set and the later tuples are tracked by their exact
// joined text instead, so a collision never merges two groups.
type Tracker struct {
	byHash       map[uint64]int // hash → ordinal of the first tuple seen with it
	byText       map[string]int // exact tuple text → ordinal, for collided hashes
	keys         [][]string     // ordinal → tuple
	hasCollision bool
	hashFn       func([]string) uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byHash: make(map[uint64]int),
		hashFn: hash.Tuple,
	}
}

// Track returns the ordinal of key, assigning the next one when key is new.
// The tracker keeps its own copy of key.
func (t *Tracker) Track(key []string) (ordinal int, isNew bool) {
	h := t.hashFn(key)

	ord, exists := t.byHash[h]
	if !exists {
		ord = t.add(key)
		t.byHash[h] = ord

		return ord, true
	}
	if slices.Equal(t.keys[ord], key) {
		return ord, false
	}

	// Same hash, different tuple.
	t.hasCollision = true
	if t.byText == nil {
		t.byText = make(map[string]int)
	}
	text := join(key)
	if ord, ok := t.byText[text]; ok {
		return ord, false
	}
	ord = t.add(key)
	t.byText[text] = ord

	return ord, true
}

func (t *Tracker) add(key []string) int {
	t.keys = append(t.keys, slices.Clone(key))
	return len(t.keys) - 1
}

// HasCollision reports whether two distinct keys shared a hash.
func (t *Tracker) HasCollision() bool {
	return t.hasCollision
}

// Key returns the tuple tracked under ordinal.
func (t *Tracker) Key(ordinal int) []string {
	return t.keys[ordinal]
}

// Count returns the number of distinct keys tracked.
func (t *Tracker) Count() int {
	return len(t.keys)
}

// Reset clears all tracked keys and the collision flag, keeping map capacity.
func (t *Tracker) Reset() {
	clear(t.byHash)
	clear(t.byText)
	t.keys = t.keys[:0]
	t.hasCollision = false
}

func join(key []string) string {
	return strings.Join(key, "\xff")
}
