// Package result carries the outcome of a call that may fail as a value,
// so fan-out code can collect successes and failures side by side.
package result

import "errors"

// ErrNoResults is returned by FirstOk when it is given no attempts
var ErrNoResults = errors.New("no results")

// Result holds either a value or an error
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure
func Err[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("result: nil error")
	}
	return Result[T]{err: err}
}

// From turns a (value, error) pair into a Result
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the result holds a value
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Error returns the failure, or nil
func (r Result[T]) Error() error {
	return r.err
}

// Unwrap returns the value and the error
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// OrElse returns the value, or the output of fallback for a failure
func (r Result[T]) OrElse(fallback func(error) T) T {
	if r.err != nil {
		return fallback(r.err)
	}
	return r.value
}

// FirstOk runs attempts in order and stops at the first success.
// If all fail, the failures are joined.
func FirstOk[T any](attempts ...func() Result[T]) Result[T] {
	if len(attempts) == 0 {
		return Err[T](ErrNoResults)
	}

	var errs []error
	for _, attempt := range attempts {
		r := attempt()
		if r.IsOk() {
			return r
		}
		errs = append(errs, r.err)
	}
	return Err[T](errors.Join(errs...))
}

// Partition splits results into values and errors, keeping order
func Partition[T any](results []Result[T]) ([]T, []error) {
	var values []T
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		values = append(values, r.value)
	}
	return values, errs
}
