package booking_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xstejsk/bp-backup/booking"
)

func TestBalanceLedger_DebitCreditInsideTx(t *testing.T) {
	f := newFixture(t)
	f.user("alice", 50, false)

	err := f.store.WithTx(f.ctx, func(st booking.Store) error {
		u, err := f.engine.Balance.Debit(f.ctx, st, "alice", 50, booking.CreditRef{IdempotencyKey: "k1"})
		require.NoError(t, err)
		assert.Equal(t, booking.Credits(0), u.Balance)

		_, err = f.engine.Balance.Debit(f.ctx, st, "alice", 1, booking.CreditRef{IdempotencyKey: "k2"})
		assert.ErrorIs(t, err, booking.ErrInsufficientFunds)

		u, err = f.engine.Balance.Credit(f.ctx, st, "alice", 20, booking.CreditRef{IdempotencyKey: "k3"})
		require.NoError(t, err)
		assert.Equal(t, booking.Credits(20), u.Balance)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, booking.Credits(20), f.balanceOf("alice"))
}

func TestBalanceLedger_DuplicateKeyRejected(t *testing.T) {
	// GIVEN: a refund already booked under a key
	f := newFixture(t)
	f.user("alice", 0, false)
	ref := booking.CreditRef{ReferenceID: "r1", IdempotencyKey: "reservation:r1:refund"}
	require.NoError(t, f.store.WithTx(f.ctx, func(st booking.Store) error {
		_, err := f.engine.Balance.Credit(f.ctx, st, "alice", 30, ref)
		return err
	}))

	// WHEN: booking it again
	err := f.store.WithTx(f.ctx, func(st booking.Store) error {
		_, err := f.engine.Balance.Credit(f.ctx, st, "alice", 30, ref)
		return err
	})

	// THEN: rejected, balance credited once
	assert.ErrorIs(t, err, booking.ErrDuplicateIdempotencyKey)
	assert.Equal(t, booking.Credits(30), f.balanceOf("alice"))
}

func TestBalanceLedger_NegativeAmounts(t *testing.T) {
	f := newFixture(t)
	f.user("alice", 10, false)

	err := f.store.WithTx(f.ctx, func(st booking.Store) error {
		_, err := f.engine.Balance.Debit(f.ctx, st, "alice", -5, booking.CreditRef{})
		return err
	})
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)

	err = f.store.WithTx(f.ctx, func(st booking.Store) error {
		_, err := f.engine.Balance.Credit(f.ctx, st, "alice", -5, booking.CreditRef{})
		return err
	})
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	assert.Equal(t, booking.Credits(10), f.balanceOf("alice"))
}

func TestAdjustBalance(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 10, false)

	t.Run("admin sets the balance", func(t *testing.T) {
		u, err := f.engine.Accounts.AdjustBalance(f.ctx, admin, "alice", 500, "top-up")
		require.NoError(t, err)
		assert.Equal(t, booking.Credits(500), u.Balance)

		history, err := f.engine.Accounts.CreditHistory(f.ctx, alice, "alice")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, booking.CreditAdjustment, history[0].Type)
		assert.Equal(t, booking.Credits(490), history[0].Delta)
		assert.Equal(t, booking.Credits(500), history[0].BalanceAfter)
		assert.Equal(t, "admin", history[0].CreatedBy)
	})
	t.Run("negative is invalid amount", func(t *testing.T) {
		_, err := f.engine.Accounts.AdjustBalance(f.ctx, admin, "alice", -1, "")
		assert.ErrorIs(t, err, booking.ErrInvalidAmount)
		assert.Equal(t, booking.Credits(500), f.balanceOf("alice"))
	})
	t.Run("users cannot adjust", func(t *testing.T) {
		_, err := f.engine.Accounts.AdjustBalance(f.ctx, alice, "alice", 1000, "")
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})
	t.Run("unknown user", func(t *testing.T) {
		_, err := f.engine.Accounts.AdjustBalance(f.ctx, admin, "ghost", 1, "")
		assert.True(t, booking.IsNotFound(err))
	})
}

func TestAccounts_SaveUserKeepsBalance(t *testing.T) {
	f := newFixture(t)
	f.user("alice", 75, false)

	u, err := f.engine.Accounts.SaveUser(f.ctx, admin, booking.UserInput{
		ID: "alice", Email: "alice@new.example.com", Role: "ADMIN", InitialBalance: 9999, HasDailyDiscount: true,
	})

	require.NoError(t, err)
	assert.Equal(t, booking.Credits(75), u.Balance)
	assert.Equal(t, booking.RoleAdmin, u.Role)
	got, err := f.engine.Accounts.GetUser(f.ctx, admin, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", got.Email)
	assert.True(t, got.HasDailyDiscount)
	assert.Equal(t, booking.Credits(75), got.Balance)
}

func TestAccounts_Visibility(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", 0, false)
	f.user("bob", 0, false)

	_, err := f.engine.Accounts.GetUser(f.ctx, alice, "alice")
	assert.NoError(t, err)
	_, err = f.engine.Accounts.GetUser(f.ctx, alice, "bob")
	assert.ErrorIs(t, err, booking.ErrForbidden)
	_, err = f.engine.Accounts.ListUsers(f.ctx, alice)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	users, err := f.engine.Accounts.ListUsers(f.ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	_, err = f.engine.Accounts.SaveUser(f.ctx, admin, booking.UserInput{ID: "x"})
	assert.ErrorIs(t, err, booking.ErrInvalidArgument)
}

func TestAdjustBalance_CeilingKeepsRefundsSafe(t *testing.T) {
	// GIVEN: alice holds a paid reservation and an admin tops her up to the ceiling
	f := newFixture(t)
	alice := f.user("alice", 10, false)
	ev := f.event("2026-10-20", 2, 10, 10)
	res, _, err := f.engine.Reservations.CreateReservation(f.ctx, ev.ID, "alice", alice)
	require.NoError(t, err)

	_, err = f.engine.Accounts.AdjustBalance(f.ctx, admin, "alice", math.MaxInt64, "typo")
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	_, err = f.engine.Accounts.AdjustBalance(f.ctx, admin, "alice", booking.MaxCredits+1, "")
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	_, err = f.engine.Accounts.AdjustBalance(f.ctx, admin, "alice", booking.MaxCredits, "")
	require.NoError(t, err)

	// WHEN: she cancels
	balance, err := f.engine.Reservations.CancelReservation(f.ctx, res.ID, alice)

	// THEN: the refund lands on top of the ceiling without wrapping
	require.NoError(t, err)
	assert.Equal(t, booking.MaxCredits+10, balance)
	assert.Equal(t, booking.MaxCredits+10, f.balanceOf("alice"))
}

func TestBalanceLedger_CreditOverflowRejected(t *testing.T) {
	// GIVEN: a balance close to the int64 limit, written straight to the store
	f := newFixture(t)
	f.user("alice", 0, false)
	require.NoError(t, f.store.SetBalance(f.ctx, "alice", math.MaxInt64-5))

	// WHEN
	err := f.store.WithTx(f.ctx, func(st booking.Store) error {
		_, err := f.engine.Balance.Credit(f.ctx, st, "alice", 10, booking.CreditRef{IdempotencyKey: "k"})
		return err
	})

	// THEN: rejected instead of wrapping negative
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
	assert.Equal(t, booking.Credits(math.MaxInt64-5), f.balanceOf("alice"))
	assert.ErrorIs(t, f.store.SetBalance(f.ctx, "alice", -1), booking.ErrInvalidAmount)
}

func TestSaveUser_InitialBalanceCeiling(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Accounts.SaveUser(f.ctx, admin, booking.UserInput{
		ID: "rich", Email: "rich@example.com", Role: booking.RoleUser, InitialBalance: booking.MaxCredits + 1,
	})

	assert.ErrorIs(t, err, booking.ErrInvalidAmount)
}
