package tablo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// UnreachableError means the device did not answer at all. The sync engine
// records it per device and carries on with the rest of the batch.
type UnreachableError struct {
	DeviceIP string
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("device %s unreachable: %v", e.DeviceIP, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer from the device API.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// transient reports whether an error is worth retrying: connection-level
// failures, timeouts and 5xx answers. Auth rejections and other 4xx are
// surfaced immediately.
func transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return errors.Is(err, context.DeadlineExceeded)
}
