package services

import "sync"

// IngestLocks serialises work on a unit and keeps owner purges exclusive.
// Ingestion holds its owner's gate shared and its unit's mutex exclusively;
// a purge holds the owner's gate exclusively. Entries are removed once no
// goroutine holds or waits for them.
type IngestLocks struct {
	mu     sync.Mutex
	units  map[string]*unitLock
	owners map[string]*ownerGate
}

type unitLock struct {
	sync.Mutex
	refs int
}

type ownerGate struct {
	sync.RWMutex
	refs int
}

// NewIngestLocks creates an empty lock table.
func NewIngestLocks() *IngestLocks {
	return &IngestLocks{
		units:  make(map[string]*unitLock),
		owners: make(map[string]*ownerGate),
	}
}

// Unit takes the owner gate shared, then the unit mutex. The returned
// function releases both.
func (l *IngestLocks) Unit(ownerID, unitID string) (release func()) {
	gate := l.gate(ownerID)
	gate.RLock()

	l.mu.Lock()
	u, ok := l.units[unitID]
	if !ok {
		u = &unitLock{}
		l.units[unitID] = u
	}
	u.refs++
	l.mu.Unlock()

	u.Lock()

	return func() {
		u.Unlock()
		l.mu.Lock()
		u.refs--
		if u.refs == 0 {
			delete(l.units, unitID)
		}
		l.mu.Unlock()

		gate.RUnlock()
		l.dropGate(ownerID, gate)
	}
}

// Owner takes the owner gate exclusively, waiting for in-flight
// ingestion of that owner to finish.
func (l *IngestLocks) Owner(ownerID string) (release func()) {
	gate := l.gate(ownerID)
	gate.Lock()

	return func() {
		gate.Unlock()
		l.dropGate(ownerID, gate)
	}
}

func (l *IngestLocks) gate(ownerID string) *ownerGate {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.owners[ownerID]
	if !ok {
		g = &ownerGate{}
		l.owners[ownerID] = g
	}
	g.refs++
	return g
}

func (l *IngestLocks) dropGate(ownerID string, g *ownerGate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	g.refs--
	if g.refs == 0 {
		delete(l.owners, ownerID)
	}
}

// size reports the number of live entries.
func (l *IngestLocks) size() (units, owners int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.units), len(l.owners)
}
