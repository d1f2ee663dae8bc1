package prediction

import "errors"

// Error kinds, matched with errors.Is.
var (
	// ErrInvalid is a bad or missing prompt or id. The user must fix the input.
	ErrInvalid = errors.New("invalid request")
	// ErrUpstream is a transport failure or non-2xx answer from the provider.
	ErrUpstream = errors.New("upstream error")
	// ErrConfig is a missing server-side credential.
	ErrConfig = errors.New("configuration error")
)

var (
	ErrInvalidPrompt = &Error{kind: ErrInvalid, msg: "Invalid prompt. Please provide a valid music description."}
	ErrMissingID     = &Error{kind: ErrInvalid, msg: "Prediction ID is required"}
)

// Error carries a user-facing message together with its kind.
type Error struct {
	kind error
	msg  string
	err  error
}

// NewError returns an error of the given kind.
func NewError(kind error, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Is(target error) bool {
	return target == e.kind
}

func (e *Error) Unwrap() error {
	return e.err
}
