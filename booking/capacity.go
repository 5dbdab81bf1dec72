/*
capacity.go - Seat counter per event

PURPOSE:
  Keeps spacesAvailable within [0, maximumCapacity]. The ledger knows
  nothing about users or money; ReservationService pairs it with the
  BalanceLedger inside one transaction.

RULES:
  Reserve:   start strictly in the future, then at least one free seat
  Release:   +1, never above maximumCapacity
  CanDelete: no seat taken and start in the future

  Every method takes the Store of the running transaction and locks the
  event row before reading the counter.
*/
package booking

import (
	"context"
	"fmt"
)

type CapacityLedger struct {
	env
}

// Reserve takes one seat of eventID and returns the updated event.
func (c *CapacityLedger) Reserve(ctx context.Context, st Store, eventID string) (Event, error) {
	ev, err := st.LockEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if ev.HasStarted(c.now(), c.loc) {
		return ev, fmt.Errorf("event %s started at %s: %w", ev.ID, ev.StartsAt(c.loc).Format("2006-01-02 15:04"), ErrEventClosed)
	}
	if ev.SpacesAvailable <= 0 {
		return ev, fmt.Errorf("event %s has no spaces left of %d: %w", ev.ID, ev.MaximumCapacity, ErrEventFull)
	}
	ev.SpacesAvailable--
	if err := st.UpdateEvent(ctx, ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Release returns one seat of eventID. Releasing a fully free event is a
// no-op so a double release cannot push the counter over capacity.
func (c *CapacityLedger) Release(ctx context.Context, st Store, eventID string) (Event, error) {
	ev, err := st.LockEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if ev.SpacesAvailable >= ev.MaximumCapacity {
		c.log.Warn("release on event with no reservations", "event", ev.ID)
		return ev, nil
	}
	ev.SpacesAvailable++
	if err := st.UpdateEvent(ctx, ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// CanDelete reports whether ev has no active reservation and starts in the
// future.
func (c *CapacityLedger) CanDelete(ev *Event) bool {
	return ev.SpacesAvailable == ev.MaximumCapacity && !ev.HasStarted(c.now(), c.loc)
}
