package db

import "errors"

// Sentinel errors for database operations. Check with errors.Is.
var (
	// ErrUnsafeStatement indicates a statement was rejected by the read-only
	// guard before reaching the database.
	ErrUnsafeStatement = errors.New("statement rejected: only read-only queries are allowed")

	// ErrBadIdentifier indicates a table name that is not a plain identifier
	// and was refused rather than interpolated into SQL.
	ErrBadIdentifier = errors.New("invalid table identifier")

	// ErrUnknownTable indicates a schema lookup for a table that does not
	// exist in the connected database.
	ErrUnknownTable = errors.New("table not found")
)
