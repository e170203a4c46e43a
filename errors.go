package cachedict

import (
	"errors"
	"fmt"

	"github.com/josemimbre/cachedict/updatequeue"
)

var (
	// ErrClosed is returned when the dictionary has been closed.
	ErrClosed = errors.New("dictionary closed")

	// ErrBackpressure is returned when the update queue stayed full for the
	// whole push timeout. The lookup was load-shed; retrying later is safe.
	ErrBackpressure = errors.New("update queue full")

	// ErrRefreshTimeout is returned when a synchronous lookup waited longer
	// than the configured wait timeout for its refresh batch.
	ErrRefreshTimeout = errors.New("refresh wait timed out")

	// ErrSourceFailure is returned when the backing source failed to serve a
	// refresh batch. The underlying error can be accessed via errors.Unwrap.
	ErrSourceFailure = errors.New("backing source failure")
)

// translateError maps update-queue errors onto the dictionary's error kinds
// so callers only match against this package's sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, updatequeue.ErrQueueClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, updatequeue.ErrPushTimeout) {
		return fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	if errors.Is(err, updatequeue.ErrWaitTimeout) {
		return fmt.Errorf("%w: %w", ErrRefreshTimeout, err)
	}
	if errors.Is(err, updatequeue.ErrFetchFailed) {
		return fmt.Errorf("%w: %w", ErrSourceFailure, err)
	}

	return err
}
