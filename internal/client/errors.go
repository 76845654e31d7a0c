package client

import (
	"errors"
	"fmt"

	"httprpc/internal/batcher"
)

var (
	// ErrNoResult rejects calls the server never answered before the reply ended
	ErrNoResult = errors.New("no result for job")
	// ErrClosed is returned for calls made after Close
	ErrClosed = batcher.ErrClosed
)

// RemoteError is a per-call failure reported by the remote handler.
// Error returns exactly the remote message.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// StatusError rejects calls left unanswered by a reply with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// TransportError rejects calls whose wire exchange failed
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
