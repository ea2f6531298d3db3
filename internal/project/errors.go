package project

import "errors"

var (
	// ErrNotFound is returned when a project id does not exist.
	ErrNotFound = errors.New("project: not found")

	// ErrNoActiveProject is returned for operations that need a loaded
	// project when none is loaded.
	ErrNoActiveProject = errors.New("project: no active project")

	// ErrItemNotFound is returned when an item id does not exist in the
	// active project.
	ErrItemNotFound = errors.New("project: item not found")
)
