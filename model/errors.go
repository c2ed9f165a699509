package model

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrIO       = errors.New("io error")
	ErrProtocol = errors.New("protocol error")
	ErrAuth     = errors.New("authentication failed")
	ErrFormat   = errors.New("format error")
)

var (
	// ErrNoDelimiter is returned when the server's root listing carries no
	// hierarchy delimiter.
	ErrNoDelimiter = fmt.Errorf("%w: no hierarchy delimiter", ErrProtocol)

	// ErrCredentialsRejected marks a login the server refused. Unlike transport
	// failures it may be retried with a new secret.
	ErrCredentialsRejected = errors.New("credentials rejected")
)
