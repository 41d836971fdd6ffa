package errorx

import (
	"errors"
	"fmt"
)

// Wrap adds additional context to an error.
//
// It is intended to be deferred with a pointer to a named error return value.
func Wrap(err *error, format string, args ...any) {
	if err == nil {
		panic("err must not be nil")
	}

	if *err == nil {
		return
	}

	*err = fmt.Errorf(format+": %w", append(args, *err)...)
}

// WrapUnless is like [Wrap], but leaves the error unchanged if skip returns
// true.
func WrapUnless(err *error, skip func(error) bool, format string, args ...any) {
	if err == nil {
		panic("err must not be nil")
	}

	if *err == nil || skip(*err) {
		return
	}

	Wrap(err, format, args...)
}

// Is returns a predicate for [WrapUnless] that matches errors that are, or
// wrap, target.
func Is(target error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}
