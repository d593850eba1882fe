package types

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested task is not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTask is returned when a task with the same ID already exists.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrTaskRemoved is returned when toggling a task whose annotation was removed from its file.
	ErrTaskRemoved = errors.New("task was removed from its file")

	// ErrEmptyText is returned when a task text is blank.
	ErrEmptyText = errors.New("task text is empty")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPattern is returned when a custom exclude pattern does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrFileUnreadable is returned when a file cannot be read.
	ErrFileUnreadable = errors.New("file unreadable")

	// ErrFileExcluded is returned when a file is outside the scan scope.
	ErrFileExcluded = errors.New("file excluded from scanning")

	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)
