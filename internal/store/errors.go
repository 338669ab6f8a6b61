package store

import "errors"

// ErrMutationFailed is the only error mutation methods return. The
// underlying cause goes to the notice feed; callers learn just that
// the snapshot did not change.
var ErrMutationFailed = errors.New("store: mutation failed")

// ErrClosed is returned when a closed store is used.
var ErrClosed = errors.New("store: closed")
