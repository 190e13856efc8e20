package connectwise

import "errors"

var (
	// ErrMissingCredentials reports an incomplete credential bundle at construction.
	ErrMissingCredentials = errors.New("missing connectwise credentials")

	// ErrRequestFailed reports a transport failure that exhausted its retry budget.
	ErrRequestFailed = errors.New("connectwise request failed")
)
