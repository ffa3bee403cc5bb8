package ticketing

import (
	"errors"
	"fmt"
)

// Precondition rejections. These are expected user-facing outcomes and are
// reported back through the interactive surface, never logged as system
// errors.
var (
	// ErrBlacklisted is returned when a blacklisted user tries to create a
	// ticket.
	ErrBlacklisted = errors.New("user is blacklisted from creating tickets")

	// ErrTooManyOpenSessions is returned when a user already has the maximum
	// number of open tickets.
	ErrTooManyOpenSessions = errors.New("user has too many open tickets")

	// ErrNotATicketChannel is returned when an operation targets a channel
	// that is not backing an open ticket.
	ErrNotATicketChannel = errors.New("not a ticket channel")

	// ErrAlreadyParticipant is returned when adding a user that already has
	// access to the ticket. Distinguishable from success so callers can
	// message appropriately.
	ErrAlreadyParticipant = errors.New("user is already a participant")

	// ErrConfirmationExpired is returned when a close confirmation arrives
	// after its timeout. The close is abandoned with no side effects.
	ErrConfirmationExpired = errors.New("close confirmation expired")

	// ErrUnknownCategory is returned when a ticket references a category the
	// guild does not define.
	ErrUnknownCategory = errors.New("unknown ticket category")

	// ErrTooManyCategories is returned when adding a category beyond the
	// select menu's 25-option cap.
	ErrTooManyCategories = errors.New("too many ticket categories")

	// ErrTooManyQuestions is returned when a category defines more intake
	// questions than a modal can hold.
	ErrTooManyQuestions = errors.New("too many intake questions")
)

// AlreadyClaimedError is returned when claiming a ticket that already has a
// claimant. It names the winner so the caller can report it.
type AlreadyClaimedError struct {
	// By is the user that holds the claim.
	By string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("ticket is already claimed by %s", e.By)
}

// ProvisioningError wraps a failed remote channel operation. The data model
// is left in its prior state; the call is never retried implicitly.
type ProvisioningError struct {
	// Op is the remote operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("channel provisioning failed (%s): %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed store operation. It is fatal to the
// triggering operation; any in-memory mutation is rolled back before it is
// returned.
type PersistenceError struct {
	// Op is the store operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsUserError reports whether the error is a precondition rejection that
// should be surfaced to the user as-is rather than logged as a failure.
func IsUserError(err error) bool {
	var claimed *AlreadyClaimedError
	return errors.Is(err, ErrBlacklisted) ||
		errors.Is(err, ErrTooManyOpenSessions) ||
		errors.Is(err, ErrNotATicketChannel) ||
		errors.Is(err, ErrAlreadyParticipant) ||
		errors.Is(err, ErrConfirmationExpired) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.As(err, &claimed)
}
