package stats

import "errors"

// ErrNotFound is returned when a stored run does not exist.
var ErrNotFound = errors.New("not found")
