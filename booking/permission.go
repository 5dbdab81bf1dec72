package booking

// Action is something a caller may attempt.
type Action string

const (
	ActionReserve           Action = "reserve"
	ActionCancelReservation Action = "cancel reservation"
	ActionViewReservations  Action = "view reservations"
	ActionViewAccount       Action = "view account"
	ActionManageCalendars   Action = "manage calendars"
	ActionManageEvents      Action = "manage events"
	ActionManageUsers       Action = "manage users"
	ActionAdjustBalance     Action = "adjust balance"
)

// Authorize is the single permission policy of the engine. ownerID is the
// owner of the resource the action touches, or "" when the action is not
// tied to an owned resource.
//
//	GUEST: nothing
//	USER:  reserve for themselves; cancel/view what they own
//	ADMIN: everything
func Authorize(caller Caller, action Action, ownerID string) error {
	switch caller.Role {
	case RoleAdmin:
		return nil
	case RoleUser:
		switch action {
		case ActionReserve, ActionCancelReservation, ActionViewReservations, ActionViewAccount:
			if ownerID != "" && ownerID == caller.UserID {
				return nil
			}
		}
	}
	return &ForbiddenError{Role: caller.Role, Action: action}
}
