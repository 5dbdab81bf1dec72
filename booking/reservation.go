/*
reservation.go - Reservation lifecycle

PURPOSE:
  Orchestrates CapacityLedger and BalanceLedger so that a reservation takes
  a seat and debits credits as one unit of work, and a cancellation gives
  both back.

STATES (per event, user):
  ┌──────┐  CreateReservation  ┌──────────┐  CancelReservation  ┌──────┐
  │ NONE │ ──────────────────▶ │ RESERVED │ ──────────────────▶ │ NONE │
  └──────┘                     └──────────┘   (before start)    └──────┘

  There is no pending state. Cancellation deletes the reservation row; the
  credit log keeps the history.

CREATE:
  1. AlreadyReserved if (event, user) already holds a reservation
  2. Forbidden for GUEST (and for USER reserving for someone else)
  3. Reserve a seat: EventClosed, then EventFull
  4. Price: discount price when the user has the multisport flag
  5. Debit the price, insert the reservation
  A failed debit aborts the transaction, which rolls the seat back.

CANCEL:
  1. NotFound, 2. Forbidden unless owner or ADMIN, 3. EventClosed after start
  4. Delete, release the seat, refund the price recomputed from the stored
     discountApplied flag (not the user's current eligibility)

CONCURRENCY:
  Both run inside Store.WithTx with the user and event rows locked, user
  first, so two reservations never race for the last seat or the last
  credits.
*/
package booking

import (
	"context"
	"fmt"
)

type ReservationService struct {
	env
	store              TxStore
	capacity           *CapacityLedger
	balance            *BalanceLedger
	notifier           Notifier
	discountFirstOfDay bool
}

// CreateReservation books one seat of eventID for userID and returns the
// reservation with the user's balance after the debit.
func (s *ReservationService) CreateReservation(ctx context.Context, eventID, userID string, caller Caller) (Reservation, Credits, error) {
	var (
		res     Reservation
		ev      Event
		balance Credits
	)
	err := s.store.WithTx(ctx, func(st Store) error {
		if _, exists, err := st.FindReservation(ctx, eventID, userID); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("event %s, user %s: %w", eventID, userID, ErrAlreadyReserved)
		}
		if err := Authorize(caller, ActionReserve, userID); err != nil {
			return err
		}
		user, err := st.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		ev, err = s.capacity.Reserve(ctx, st, eventID)
		if err != nil {
			return err
		}

		discount := user.HasDailyDiscount
		if discount && s.discountFirstOfDay {
			taken, err := st.HasReservationOn(ctx, userID, ev.Date, ev.ID)
			if err != nil {
				return err
			}
			discount = !taken
		}

		res = Reservation{
			ID:              s.newID(),
			EventID:         ev.ID,
			OwnerID:         userID,
			DiscountApplied: discount,
			CreatedAt:       s.now().UTC(),
		}
		u, err := s.balance.Debit(ctx, st, userID, ev.PriceFor(discount), CreditRef{
			ReferenceID:    res.ID,
			Reason:         "reservation of " + ev.Title + " on " + ev.Date.String(),
			IdempotencyKey: debitKey(res.ID),
			CreatedBy:      caller.UserID,
		})
		if err != nil {
			return err
		}
		balance = u.Balance
		return st.InsertReservation(ctx, res)
	})
	if err != nil {
		return Reservation{}, 0, err
	}

	s.log.Info("reservation created",
		"reservation", res.ID, "event", ev.ID, "owner", userID,
		"discount", res.DiscountApplied, "spaces_left", ev.SpacesAvailable)
	s.notify(ctx, Notification{Kind: NotifyReservationCreated, Reservation: res, Event: ev, Balance: balance, At: res.CreatedAt})
	return res, balance, nil
}

// CancelReservation removes the reservation, frees its seat and refunds the
// owner. It returns the owner's balance after the refund.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID string, caller Caller) (Credits, error) {
	var (
		res     Reservation
		ev      Event
		balance Credits
	)
	err := s.store.WithTx(ctx, func(st Store) error {
		var err error
		res, err = st.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, ActionCancelReservation, res.OwnerID); err != nil {
			return err
		}
		ev, err = st.GetEvent(ctx, res.EventID)
		if err != nil {
			return err
		}
		if ev.HasStarted(s.now(), s.loc) {
			return fmt.Errorf("reservation %s: event %s already started: %w", res.ID, ev.ID, ErrEventClosed)
		}
		if _, err := st.LockUser(ctx, res.OwnerID); err != nil {
			return err
		}
		if err := st.DeleteReservation(ctx, res.ID); err != nil {
			return err
		}
		if ev, err = s.capacity.Release(ctx, st, res.EventID); err != nil {
			return err
		}
		u, err := s.balance.Credit(ctx, st, res.OwnerID, ev.PriceFor(res.DiscountApplied), CreditRef{
			ReferenceID:    res.ID,
			Reason:         "cancellation of " + ev.Title + " on " + ev.Date.String(),
			IdempotencyKey: refundKey(res.ID),
			CreatedBy:      caller.UserID,
		})
		if err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("reservation cancelled",
		"reservation", res.ID, "event", ev.ID, "owner", res.OwnerID, "by", caller.UserID)
	s.notify(ctx, Notification{Kind: NotifyReservationCancelled, Reservation: res, Event: ev, Balance: balance, At: s.now().UTC()})
	return balance, nil
}

// ListReservations returns the reservations matching filter. Non-admins
// only ever see their own.
func (s *ReservationService) ListReservations(ctx context.Context, caller Caller, filter ReservationFilter) ([]Reservation, error) {
	if caller.Role != RoleAdmin && filter.OwnerID == "" {
		filter.OwnerID = caller.UserID
	}
	if caller.Role != RoleAdmin || filter.OwnerID != "" {
		if err := Authorize(caller, ActionViewReservations, filter.OwnerID); err != nil {
			return nil, err
		}
	}
	return s.store.ListReservations(ctx, filter)
}

func (s *ReservationService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification failed", "kind", n.Kind, "reservation", n.Reservation.ID, "error", err)
	}
}

func debitKey(reservationID string) string  { return "reservation:" + reservationID + ":debit" }
func refundKey(reservationID string) string { return "reservation:" + reservationID + ":refund" }
