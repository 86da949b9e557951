package conversation

import (
	"context"
	"errors"
)

var (
	// ErrEmptyUserID is returned when a store is called without a user ID.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("state store is closed")
	// ErrConflict is returned when a RedisStore update keeps losing races.
	ErrConflict = errors.New("state update conflicted too many times")
)

// UpdateFunc mutates a user's state in place. Returning an error aborts the
// update and nothing is written.
type UpdateFunc func(state *UserTurnState) error

// Store maps user IDs to UserTurnState with per-user mutual exclusion.
//
// Update runs fn inside the user's critical section and commits its
// changes atomically; the state is created if it does not exist. Updates
// for different users do not block each other. Get returns a copy, and the
// bool is false when the user has no state. Delete removes the state; it
// is not an error to delete an unknown user.
type Store interface {
	Get(ctx context.Context, userID string) (UserTurnState, bool, error)
	Update(ctx context.Context, userID string, fn UpdateFunc) (UserTurnState, error)
	Delete(ctx context.Context, userID string) error
	Close() error
}
