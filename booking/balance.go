/*
balance.go - Credit balance per user

PURPOSE:
  Keeps every user balance a non-negative integer and records each change
  in the append-only credit log, in the same transaction as the balance
  write. The log is the audit trail: balance after every change, who made
  it, and which reservation caused it.

IDEMPOTENCY:
  Debits and refunds carry a key derived from the reservation id
  ("reservation:<id>:debit", "reservation:<id>:refund"). The store rejects a
  repeated key, so the same refund can never be booked twice.

SEE ALSO:
  - reservation.go: the only caller of Debit and Credit
  - accounts.go: administrative Adjust
*/
package booking

import (
	"context"
	"fmt"
	"math"
)

// CreditRef describes why a balance changes.
type CreditRef struct {
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	CreatedBy      string
}

type BalanceLedger struct {
	env
}

// Debit subtracts amount from the balance of userID.
func (b *BalanceLedger) Debit(ctx context.Context, st Store, userID string, amount Credits, ref CreditRef) (User, error) {
	if amount < 0 {
		return User{}, fmt.Errorf("debit of %d: %w", amount, ErrInvalidAmount)
	}
	u, err := st.LockUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if u.Balance-amount < 0 {
		return u, &InsufficientFundsError{UserID: u.ID, Balance: u.Balance, Price: amount}
	}
	return b.apply(ctx, st, u, u.Balance-amount, CreditDebit, ref)
}

// Credit adds amount to the balance of userID.
func (b *BalanceLedger) Credit(ctx context.Context, st Store, userID string, amount Credits, ref CreditRef) (User, error) {
	if amount < 0 {
		return User{}, fmt.Errorf("credit of %d: %w", amount, ErrInvalidAmount)
	}
	u, err := st.LockUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if amount > math.MaxInt64-u.Balance {
		return u, fmt.Errorf("credit of %d to balance %d overflows: %w", amount, u.Balance, ErrInvalidAmount)
	}
	return b.apply(ctx, st, u, u.Balance+amount, CreditRefund, ref)
}

// Adjust sets the balance of userID to newBalance, at most MaxCredits.
func (b *BalanceLedger) Adjust(ctx context.Context, st Store, userID string, newBalance Credits, ref CreditRef) (User, error) {
	if err := checkCredits("balance", newBalance); err != nil {
		return User{}, err
	}
	u, err := st.LockUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	return b.apply(ctx, st, u, newBalance, CreditAdjustment, ref)
}

func (b *BalanceLedger) apply(ctx context.Context, st Store, u User, newBalance Credits, kind CreditTxType, ref CreditRef) (User, error) {
	entry := CreditTransaction{
		ID:             b.newID(),
		UserID:         u.ID,
		Delta:          newBalance - u.Balance,
		BalanceAfter:   newBalance,
		Type:           kind,
		ReferenceID:    ref.ReferenceID,
		Reason:         ref.Reason,
		IdempotencyKey: ref.IdempotencyKey,
		CreatedBy:      ref.CreatedBy,
		CreatedAt:      b.now().UTC(),
	}
	if err := st.AppendCredit(ctx, entry); err != nil {
		return User{}, fmt.Errorf("record %s for user %s: %w", kind, u.ID, err)
	}
	if err := st.SetBalance(ctx, u.ID, newBalance); err != nil {
		return User{}, err
	}
	u.Balance = newBalance
	return u, nil
}
