package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/models"
)

const (
	DefaultCommentsPageSize = 20
	MaxCommentsPageSize     = 100

	commentFailedMessage = "Failed to post comment"
	signInCommentMessage = "Sign in to comment"
)

// Comments reads and writes the comment thread of a post
type Comments struct {
	store    CommentStore
	identity Identity
	notifier Notifier
	pageSize int
	policy   *bluemonday.Policy
	now      func() time.Time
	log      *logrus.Logger
}

// NewComments creates a comment service. A pageSize outside 1..MaxCommentsPageSize
// falls back to DefaultCommentsPageSize. A nil now uses time.Now.
func NewComments(
	store CommentStore,
	identity Identity,
	notifier Notifier,
	pageSize int,
	now func() time.Time,
	log *logrus.Logger,
) *Comments {
	if pageSize <= 0 || pageSize > MaxCommentsPageSize {
		pageSize = DefaultCommentsPageSize
	}
	if now == nil {
		now = time.Now
	}
	return &Comments{
		store:    store,
		identity: identity,
		notifier: notifier,
		pageSize: pageSize,
		policy:   bluemonday.UGCPolicy(),
		now:      now,
		log:      log,
	}
}

// List returns one page of comments, newest first. Pass the id of the last comment
// of the previous page as before to get the next page.
func (c *Comments) List(ctx context.Context, postID, before string) ([]models.Comment, error) {
	comments, err := c.store.ListComments(ctx, postID, before, c.pageSize)
	if err != nil {
		c.log.WithError(err).WithField("post_id", postID).Error("Failed to list comments")
		return nil, fmt.Errorf("failed to list comments of post %s: %w", postID, err)
	}
	for i := range comments {
		comments[i].Likes = uniqueNonEmpty(comments[i].Likes)
	}
	return comments, nil
}

func (c *Comments) Count(ctx context.Context, postID string) (int, error) {
	count, err := c.store.CountComments(ctx, postID)
	if err != nil {
		c.log.WithError(err).WithField("post_id", postID).Error("Failed to count comments")
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}
	return count, nil
}

// Create posts a comment as the current user. The content is trimmed and stripped
// of unsafe markup; nothing is written if no text remains.
func (c *Comments) Create(ctx context.Context, postID, content string) (models.Comment, error) {
	userID, ok := c.identity.UserID()
	if !ok {
		c.notifier.Notify(NewNotice(NoticeInfo, signInCommentMessage, c.now()))
		return models.Comment{}, ErrNotAuthenticated
	}

	clean := strings.TrimSpace(c.policy.Sanitize(strings.TrimSpace(content)))
	if clean == "" {
		return models.Comment{}, ErrEmptyComment
	}

	comment, err := c.store.CreateComment(ctx, models.NewComment{
		PostID:    postID,
		CreatorID: userID,
		Content:   clean,
		Likes:     []string{},
	})
	if err != nil {
		c.log.WithError(err).WithField("post_id", postID).Error("Failed to create comment")
		c.notifier.Notify(NewNotice(NoticeError, commentFailedMessage, c.now()))
		return models.Comment{}, fmt.Errorf("failed to create comment on post %s: %w", postID, err)
	}

	c.log.WithFields(logrus.Fields{
		"post_id":    postID,
		"comment_id": comment.ID,
	}).Info("Created comment")

	return comment, nil
}
