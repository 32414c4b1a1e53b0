package session

import "errors"

var (
	ErrInvalidState       = errors.New("invalid state")
	ErrNoActivePoll       = errors.New("no active poll")
	ErrInvalidChoice      = errors.New("invalid choice")
	ErrAlreadyActive      = errors.New("session already active")
	ErrPersistenceFailure = errors.New("persistence failure")

	// errTallyUnderflow marks a decrement of a zero count. Tallies are clamped
	// when it happens; it always indicates a reconciliation bug.
	errTallyUnderflow = errors.New("tally underflow")
)

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNoActivePoll):
		return "no_active_poll"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	}
	return "internal"
}
