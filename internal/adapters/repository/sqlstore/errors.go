package sqlstore

import "errors"

// Sentinel error kinds for the SQL store.
var (
	ErrUnsupportedBackend = errors.New("unsupported store backend")
	ErrDirtyDatabase      = errors.New("database schema is dirty")
)
