package job

import "errors"

// ErrUnauthorized is returned when a configured shared secret does not match.
var ErrUnauthorized = errors.New("unauthorized")

// ErrMissingParameter is wrapped by handlers when a mode-specific field is absent.
var ErrMissingParameter = errors.New("missing parameter")

// HandlerError wraps a failure raised while a handler processed a job.
type HandlerError struct {
	Mode Mode
	Err  error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
