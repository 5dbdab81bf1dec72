/*
audit.go - Consistency check of the derived counters

PURPOSE:
  Recomputes the two derived values the write path maintains and reports
  where the stored value disagrees:

    spacesAvailable = maximumCapacity - count(reservations of the event)
    balance         = balanceAfter of the user's latest credit entry

  The audit only reports. Nothing read here feeds a write decision.

SCOPE:
  Events from the given date onward. Users without credit entries are
  skipped: their balance is the one they were registered with.
*/
package booking

import (
	"context"
	"time"
)

type CapacityDrift struct {
	EventID         string
	Date            Date
	MaximumCapacity int
	SpacesAvailable int
	Reservations    int
}

type BalanceDrift struct {
	UserID        string
	Balance       Credits
	LoggedBalance Credits
}

type AuditReport struct {
	At            time.Time
	From          Date
	EventsChecked int
	UsersChecked  int
	Capacity      []CapacityDrift
	Balances      []BalanceDrift
}

// Clean reports whether no drift was found.
func (r AuditReport) Clean() bool { return len(r.Capacity) == 0 && len(r.Balances) == 0 }

type Auditor struct {
	env
	store TxStore
}

// Run checks events dated from onward and every user's balance. The reads
// happen in one transaction.
func (a *Auditor) Run(ctx context.Context, from Date) (AuditReport, error) {
	report := AuditReport{At: a.now().UTC(), From: from}
	err := a.store.WithTx(ctx, func(st Store) error {
		events, err := st.ListEvents(ctx, EventFilter{From: &from})
		if err != nil {
			return err
		}
		reservations, err := st.ListReservations(ctx, ReservationFilter{From: &from})
		if err != nil {
			return err
		}
		held := make(map[string]int, len(events))
		for _, r := range reservations {
			held[r.EventID]++
		}
		for _, ev := range events {
			report.EventsChecked++
			if ev.MaximumCapacity-held[ev.ID] != ev.SpacesAvailable {
				report.Capacity = append(report.Capacity, CapacityDrift{
					EventID:         ev.ID,
					Date:            ev.Date,
					MaximumCapacity: ev.MaximumCapacity,
					SpacesAvailable: ev.SpacesAvailable,
					Reservations:    held[ev.ID],
				})
			}
		}

		users, err := st.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			history, err := st.CreditHistory(ctx, u.ID)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				continue
			}
			report.UsersChecked++
			if last := history[len(history)-1]; last.BalanceAfter != u.Balance {
				report.Balances = append(report.Balances, BalanceDrift{UserID: u.ID, Balance: u.Balance, LoggedBalance: last.BalanceAfter})
			}
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}
	if !report.Clean() {
		a.log.Warn("counter drift detected",
			"from", from.String(), "capacity_drifts", len(report.Capacity), "balance_drifts", len(report.Balances))
	}
	return report, nil
}
