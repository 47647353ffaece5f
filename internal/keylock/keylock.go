// Package keylock serializes work per key. Entries exist only while a key is
// held or awaited, so the arena stays proportional to the active keys.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Arena[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func New[K comparable]() *Arena[K] {
	return &Arena[K]{entries: make(map[K]*entry)}
}

// Lock blocks until key is free and returns the function that releases it.
func (a *Arena[K]) Lock(key K) (unlock func()) {
	a.mu.Lock()
	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	e.refs++
	a.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			a.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(a.entries, key)
			}
			a.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (a *Arena[K]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
