package retry

import (
	"time"

	"github.com/corvidae/webcrawler/pkg/failure"
)

// Result carries the outcome of a retried operation: the value on
// success, the terminal error on failure, how many attempts were made,
// and the backoff delay observed before each retry (empty on a
// first-attempt success).
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
	delays   []time.Duration
}

func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

func (r Result[T]) Attempts() int {
	return r.attempts
}

func (r Result[T]) Delays() []time.Duration {
	return r.delays
}

func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

func (r Result[T]) IsFailure() bool {
	return r.err != nil
}
