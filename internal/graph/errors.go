package graph

import "errors"

var (
	// ErrDuplicateIdentity is returned when an entity would share its
	// symbolic ID with another entity of the same table.
	ErrDuplicateIdentity = errors.New("duplicate symbolic identity")

	// ErrEntityNotFound is returned for IDs that are not live in the store.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidParent is returned when a parent/child pair violates the
	// declared relations.
	ErrInvalidParent = errors.New("invalid parent")

	// ErrKindChanged is returned when a modification changes an entity's kind.
	ErrKindChanged = errors.New("entity kind cannot change")

	// ErrNilData is returned when nil data is added or produced by a mutator.
	ErrNilData = errors.New("entity data is nil")
)
