package booking

import (
	"context"
	"strings"
)

// =============================================================================
// ACCOUNT SERVICE - Users and their credit
// =============================================================================

// UserInput is the profile of a user. Balance is only set on creation.
type UserInput struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	HasDailyDiscount bool
	Enabled          bool
	InitialBalance   Credits
}

type AccountService struct {
	env
	store   TxStore
	balance *BalanceLedger
}

// SaveUser creates the user, or updates its profile if it exists. The
// balance of an existing user is never touched.
func (s *AccountService) SaveUser(ctx context.Context, caller Caller, in UserInput) (User, error) {
	if err := Authorize(caller, ActionManageUsers, ""); err != nil {
		return User{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid("email", "must not be empty")
	}
	if err := checkCredits("initial balance", in.InitialBalance); err != nil {
		return User{}, err
	}
	var u User
	err := s.store.WithTx(ctx, func(st Store) error {
		if in.ID != "" {
			existing, err := st.LockUser(ctx, in.ID)
			switch {
			case err == nil:
				u = existing
			case !IsNotFound(err):
				return err
			}
		}
		if u.ID == "" {
			u = User{ID: in.ID, Balance: in.InitialBalance, CreatedAt: s.now().UTC()}
			if u.ID == "" {
				u.ID = s.newID()
			}
		}
		u.Email = email
		u.Name = strings.TrimSpace(in.Name)
		u.Role = ParseRole(string(in.Role))
		u.HasDailyDiscount = in.HasDailyDiscount
		u.Enabled = in.Enabled
		return st.SaveUser(ctx, u)
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("user saved", "user", u.ID, "role", u.Role)
	return u, nil
}

func (s *AccountService) GetUser(ctx context.Context, caller Caller, id string) (User, error) {
	if err := Authorize(caller, ActionViewAccount, id); err != nil {
		return User{}, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *AccountService) ListUsers(ctx context.Context, caller Caller) ([]User, error) {
	if err := Authorize(caller, ActionManageUsers, ""); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// AdjustBalance sets the balance of userID (credit top-up or correction).
func (s *AccountService) AdjustBalance(ctx context.Context, caller Caller, userID string, newBalance Credits, reason string) (User, error) {
	if err := Authorize(caller, ActionAdjustBalance, ""); err != nil {
		return User{}, err
	}
	var u User
	err := s.store.WithTx(ctx, func(st Store) error {
		var err error
		u, err = s.balance.Adjust(ctx, st, userID, newBalance, CreditRef{Reason: reason, CreatedBy: caller.UserID})
		return err
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("balance adjusted", "user", userID, "balance", u.Balance, "by", caller.UserID)
	return u, nil
}

// CreditHistory returns the credit log of userID, oldest first.
func (s *AccountService) CreditHistory(ctx context.Context, caller Caller, userID string) ([]CreditTransaction, error) {
	if err := Authorize(caller, ActionViewAccount, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.CreditHistory(ctx, userID)
}
