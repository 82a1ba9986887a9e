package union

import "errors"

var (
	// ErrInvalidArgument is returned when a union input is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateColumn is returned when a schema that must be aligned by name
	// repeats a column name.
	ErrDuplicateColumn = errors.New("duplicate column name")
)
