package chat

import (
	"sync"
	"time"
)

// sequencer serialises appends per session and hands out strictly increasing createdAt
// stamps, even when the wall clock stalls or steps backwards.
type sequencer struct {
	mu    sync.Mutex
	slots map[string]*seqSlot
}

type seqSlot struct {
	mu   sync.Mutex
	refs int
	last time.Time
}

func newSequencer() *sequencer {
	return &sequencer{slots: make(map[string]*seqSlot)}
}

func (s *sequencer) acquire(sessionID string) *seqSlot {
	s.mu.Lock()
	slot, ok := s.slots[sessionID]
	if !ok {
		slot = &seqSlot{}
		s.slots[sessionID] = slot
	}
	slot.refs++
	s.mu.Unlock()

	slot.mu.Lock()
	return slot
}

func (s *sequencer) release(sessionID string, slot *seqSlot) {
	slot.mu.Unlock()

	s.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(s.slots, sessionID)
	}
	s.mu.Unlock()
}

// next returns a stamp after both floor and every stamp already issued for the slot.
// Stamps are truncated to microseconds, the precision Postgres keeps.
func (slot *seqSlot) next(now, floor time.Time) time.Time {
	if slot.last.After(floor) {
		floor = slot.last
	}
	stamp := now.UTC().Truncate(time.Microsecond)
	if !stamp.After(floor) {
		stamp = floor.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	slot.last = stamp
	return stamp
}
