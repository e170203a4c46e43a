package updatequeue

import "errors"

var (
	// ErrPushTimeout is returned when a unit could not be enqueued within
	// the configured push timeout. Retry and backoff are the caller's
	// responsibility.
	ErrPushTimeout = errors.New("updatequeue: push timed out")

	// ErrQueueClosed is returned when a push or wait is attempted after
	// shutdown began.
	ErrQueueClosed = errors.New("updatequeue: queue is closed")

	// ErrWaitTimeout is returned when a synchronous wait exceeded its
	// deadline. The unit may still complete later; its cache-side effects
	// apply regardless.
	ErrWaitTimeout = errors.New("updatequeue: wait for update timed out")

	// ErrFetchFailed wraps the error captured from the update function.
	// Every synchronous waiter of a failed unit observes it.
	ErrFetchFailed = errors.New("updatequeue: update failed")
)
