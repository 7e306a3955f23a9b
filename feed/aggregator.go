package feed

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/models"
)

// Aggregator fetches raw posts and turns them into feed posts
type Aggregator struct {
	store    PostStore
	identity Identity
	log      *logrus.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(store PostStore, identity Identity, log *logrus.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		identity: identity,
		log:      log,
	}
}

// Fetch reads all posts and normalizes them for the current user.
// Either every post is returned or a *FetchError is.
func (a *Aggregator) Fetch(ctx context.Context) ([]models.FeedPost, error) {
	posts, err := a.store.ListPosts(ctx)
	if err != nil {
		a.log.WithError(err).Error("Failed to fetch posts")
		return nil, &FetchError{Err: err}
	}

	userID, _ := a.identity.UserID()
	feedPosts := Normalize(posts, userID)

	missingCreators := 0
	for _, p := range feedPosts {
		if !p.Creator.Valid {
			missingCreators++
		}
	}
	a.log.WithFields(logrus.Fields{
		"post_count":       len(feedPosts),
		"missing_creators": missingCreators,
		"authenticated":    userID != "",
	}).Debug("Fetched and normalized posts")

	return feedPosts, nil
}

// Normalize computes the derived fields of every post relative to userID.
// An empty userID means nobody is signed in and no post is liked. The input is not modified.
func Normalize(posts []models.Post, userID string) []models.FeedPost {
	out := make([]models.FeedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, normalizePost(p, userID))
	}
	return out
}

func normalizePost(p models.Post, userID string) models.FeedPost {
	p.Likes = uniqueNonEmpty(p.Likes)
	return models.FeedPost{
		Post:            p,
		LikesCount:      len(p.Likes),
		IsLiked:         userID != "" && containsID(p.Likes, userID),
		ReadTimeMinutes: ReadTimeMinutes(p.Text()),
	}
}

// uniqueNonEmpty returns a new list without empty or repeated ids, keeping first occurrences in order.
// Likes from the store go through it before they are counted or rewritten.
func uniqueNonEmpty(likes []string) []string {
	out := make([]string, 0, len(likes))
	seen := make(map[string]struct{}, len(likes))
	for _, id := range likes {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
