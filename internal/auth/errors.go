package auth

import "errors"

// Error kinds returned by Service. Callers match them with errors.Is; the
// concrete errors also carry an oops code and context for logging.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrPolicyViolation = errors.New("policy violation")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInternal        = errors.New("internal error")
)

// Client-facing messages.
const (
	MsgMissingCredentials = "Email and password are required."
	MsgUserExists         = "User already exists."
	MsgInvalidCredentials = "Invalid credentials."
	MsgInternal           = "Internal server error."
)

// PolicyError reports the first credential policy rule a candidate failed.
// Its message is safe to show to the caller.
type PolicyError struct {
	Rule    string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicyViolation
}
