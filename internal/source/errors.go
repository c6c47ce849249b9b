package source

import (
	"errors"
	"fmt"
)

// TransientError is a source-side failure that may succeed on retry, such
// as throttling or a dropped connection.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient source error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError is a source-side failure that retrying cannot fix, such as a
// missing tweet or a rejected request.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal source error: %v", e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

func Transientf(format string, args ...any) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

func Fatalf(format string, args ...any) error {
	return &FatalError{Cause: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
