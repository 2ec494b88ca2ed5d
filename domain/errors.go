package domain

import "errors"

// ErrVersionConflict indicates that the persistence gateway rejected a move
// because a newer version of the item is already persisted.
var ErrVersionConflict = errors.New("version conflict")

// ErrConcurrentMove indicates that a move was requested for an item that
// already has a move in flight. No state is changed; the caller may retry
// once the pending move resolves.
var ErrConcurrentMove = errors.New("move already pending for item")

// ErrItemNotFound indicates that the referenced item is not part of the
// collection.
var ErrItemNotFound = errors.New("item not found")

// ErrNoActiveDrag indicates that a drag lifecycle call arrived without a
// matching BeginDrag.
var ErrNoActiveDrag = errors.New("no active drag")
