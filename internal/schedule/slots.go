// Package schedule hands out publication slots for the next calendar day.
// A Scheduler is built per run: the slot grid starts at the configured
// offset past midnight in the publication timezone and advances on a fixed
// cadence until the daily capacity is spent.
package schedule

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoCapacity is returned by Assign once every slot of the day is taken.
var ErrNoCapacity = eris.New("schedule: no remaining slots")

// Assignment pairs a catalog identifier with its publication time.
type Assignment struct {
	ContentID string
	At        time.Time
}

// Scheduler allocates slots in strictly increasing order. Assign is
// idempotent per identifier and safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	slots    []time.Time
	next     int
	assigned map[string]time.Time
	order    []Assignment
}

// New builds the slot grid for the calendar day after ref, in loc.
// slotsPerDay slots, the first firstSlot past midnight, then every cadence.
func New(ref time.Time, loc *time.Location, slotsPerDay int, cadence, firstSlot time.Duration) *Scheduler {
	local := ref.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := midnight.AddDate(0, 0, 1).Add(firstSlot)

	slots := make([]time.Time, slotsPerDay)
	for i := range slots {
		slots[i] = start.Add(time.Duration(i) * cadence)
	}

	return &Scheduler{
		slots:    slots,
		assigned: make(map[string]time.Time, slotsPerDay),
	}
}

// Assign returns the publication time for the identifier. A second call for
// the same identifier returns the original slot without consuming another.
func (s *Scheduler) Assign(contentID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.assigned[contentID]; ok {
		return at, nil
	}
	if s.next >= len(s.slots) {
		return time.Time{}, ErrNoCapacity
	}

	at := s.slots[s.next]
	s.next++
	s.assigned[contentID] = at
	s.order = append(s.order, Assignment{ContentID: contentID, At: at})
	return at, nil
}

// Remaining reports how many slots are still free.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots) - s.next
}

// Assignments returns the assignments made so far, in slot order.
func (s *Scheduler) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, len(s.order))
	copy(out, s.order)
	return out
}
