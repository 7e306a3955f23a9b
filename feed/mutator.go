package feed

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mutator toggles likes against the remote store with a read-modify-write.
// Two clients toggling the same post at once can race and lose one update.
type Mutator struct {
	store PostStore
	log   *logrus.Logger
}

// NewMutator creates a new mutator
func NewMutator(store PostStore, log *logrus.Logger) *Mutator {
	return &Mutator{
		store: store,
		log:   log,
	}
}

// ToggleLike flips the like of userID on postID and returns the likes it wrote.
// The current likes are always read fresh from the store, never from a local copy.
func (m *Mutator) ToggleLike(ctx context.Context, postID, userID string) ([]string, error) {
	if userID == "" {
		return nil, &MutationError{PostID: postID, Op: "toggle", Err: ErrNotAuthenticated}
	}

	current, err := m.store.GetPostLikes(ctx, postID)
	if err != nil {
		m.log.WithError(err).WithField("post_id", postID).Error("Failed to read likes")
		return nil, &MutationError{PostID: postID, Op: "read", Err: err}
	}

	newLikes := ToggledLikes(current, userID)

	if err := m.store.UpdatePostLikes(ctx, postID, newLikes); err != nil {
		m.log.WithError(err).WithField("post_id", postID).Error("Failed to write likes")
		return nil, &MutationError{PostID: postID, Op: "write", Err: err}
	}

	m.log.WithFields(logrus.Fields{
		"post_id":     postID,
		"liked":       containsID(newLikes, userID),
		"likes_count": len(newLikes),
	}).Info("Toggled like")

	return newLikes, nil
}

// ToggledLikes removes userID from likes if present and appends it otherwise.
// Empty and repeated ids are dropped from the result.
func ToggledLikes(likes []string, userID string) []string {
	clean := uniqueNonEmpty(likes)
	if !containsID(clean, userID) {
		return append(clean, userID)
	}
	out := clean[:0]
	for _, id := range clean {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
