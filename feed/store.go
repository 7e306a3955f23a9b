package feed

import (
	"context"

	"github.com/brettboylen/forum-feed/models"
)

// PostStore is the part of the remote store the feed reads and the like toggle writes
type PostStore interface {
	// ListPosts returns every post, newest first, with the creator joined when it resolves
	ListPosts(ctx context.Context) ([]models.Post, error)
	// GetPostLikes reads the current likes of one post; ErrPostNotFound if it does not exist
	GetPostLikes(ctx context.Context, postID string) ([]string, error)
	// UpdatePostLikes replaces the likes of one post
	UpdatePostLikes(ctx context.Context, postID string, likes []string) error
}

// CommentStore reads and writes the comments of a post
type CommentStore interface {
	// ListComments returns up to limit comments of a post, newest first.
	// A non-empty before restricts the page to comments with an id lower than it.
	ListComments(ctx context.Context, postID string, before string, limit int) ([]models.Comment, error)
	CountComments(ctx context.Context, postID string) (int, error)
	CreateComment(ctx context.Context, comment models.NewComment) (models.Comment, error)
}

// Store is everything the feed needs from the remote store
type Store interface {
	PostStore
	CommentStore
}
