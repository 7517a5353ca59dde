package payment

import "sync"

// referenceLocks serializes state transitions per payment reference so
// concurrent webhook deliveries, or a webhook racing a client-triggered
// verify, cannot apply conflicting transitions. Cross-reference operations
// take independent locks.
type referenceLocks struct {
	mu      sync.Mutex
	entries map[string]*refEntry
}

type refEntry struct {
	mu   sync.Mutex
	refs int
}

func newReferenceLocks() *referenceLocks {
	return &referenceLocks{entries: make(map[string]*refEntry)}
}

// Acquire blocks until the lock for reference is held and returns the
// release function. Entries are removed once no holder or waiter remains.
func (l *referenceLocks) Acquire(reference string) func() {
	l.mu.Lock()
	entry, ok := l.entries[reference]
	if !ok {
		entry = &refEntry{}
		l.entries[reference] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, reference)
		}
		l.mu.Unlock()
	}
}
