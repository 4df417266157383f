package shared

import "errors"

var (
	// ErrInvalidArgument indicates a required identifier was empty or nil.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAuthenticationRequired indicates the caller has no usable identity.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPartialWrite indicates a multi-commit sequence failed between commits.
	ErrPartialWrite = errors.New("partial write")
)
