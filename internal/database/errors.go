package database

import "errors"

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrConditionFailed is returned by a conditional increment when the code
	// is missing, inactive or already at its use limit.
	ErrConditionFailed = errors.New("increment condition not met")
)
