// Package keydir holds the in-memory index of live keys rebuilt from the log on open.
package keydir

import "time"

// KeyDir maps live keys to values and to optional expiry deadlines.
// It is not safe for concurrent use.
type KeyDir struct {
	values    map[string]string
	deadlines map[string]uint64
}

// New returns an empty KeyDir.
func New() *KeyDir {
	return &KeyDir{
		values:    make(map[string]string),
		deadlines: make(map[string]uint64),
	}
}

// Get returns the current value of key.
func (k *KeyDir) Get(key string) (string, bool) {
	v, ok := k.values[key]
	return v, ok
}

// Set inserts or overwrites key.
func (k *KeyDir) Set(key, value string) {
	k.values[key] = value
}

// Delete removes key and its deadline. Missing keys are ignored.
func (k *KeyDir) Delete(key string) {
	delete(k.values, key)
	delete(k.deadlines, key)
}

// Clear drops every key and every deadline.
func (k *KeyDir) Clear() {
	clear(k.values)
	clear(k.deadlines)
}

// Len returns the number of live keys.
func (k *KeyDir) Len() int {
	return len(k.values)
}

// Deadline returns the expiry deadline of key in unix seconds.
func (k *KeyDir) Deadline(key string) (uint64, bool) {
	d, ok := k.deadlines[key]
	return d, ok
}

// SetDeadline records or overwrites the deadline of key.
func (k *KeyDir) SetDeadline(key string, deadline uint64) {
	k.deadlines[key] = deadline
}

// Expired reports whether key has a deadline that now has passed.
func (k *KeyDir) Expired(key string, now time.Time) bool {
	d, ok := k.Deadline(key)
	if !ok {
		return false
	}
	return uint64(now.Unix()) > d
}
