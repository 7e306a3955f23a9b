package feed

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("no authenticated user")
	ErrPostNotFound     = errors.New("post not found")
	ErrToggleInFlight   = errors.New("like toggle already in flight for post")
	ErrUnknownLabel     = errors.New("unknown label")
	ErrInvalidSort      = errors.New("invalid sort configuration")
	ErrEmptyComment     = errors.New("comment content is empty")
)

// FetchError reports a failed bulk read of posts
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch posts: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MutationError reports a failed like toggle. Op names the step that failed.
type MutationError struct {
	PostID string
	Op     string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("failed to %s likes of post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
