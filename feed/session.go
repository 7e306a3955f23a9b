package feed

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/models"
)

const (
	fetchFailedMessage = "Failed to load posts"
	likeFailedMessage  = "Failed to update like"
	signInMessage      = "Sign in to like posts"
)

// SessionOptions configures a Session
type SessionOptions struct {
	// RefreshInterval is the polling period of Start; zero disables polling
	RefreshInterval time.Duration
	// RefreshAfterLike re-fetches the whole feed after every successful toggle
	RefreshAfterLike bool
	// OnRefresh, when set, is called with the new state after every successful refresh
	OnRefresh func(SessionState)
	Now       func() time.Time
}

// SessionState is a snapshot of what the session holds
type SessionState struct {
	Posts       []models.FeedPost `json:"posts"`
	LastRefresh time.Time         `json:"lastRefresh"`
	Stale       bool              `json:"stale"`
	LastError   string            `json:"lastError,omitempty"`
}

// Session owns the feed collection shown to the user. The collection is replaced
// wholesale on every change and never edited in place.
type Session struct {
	aggregator *Aggregator
	mutator    *Mutator
	identity   *CurrentUser
	notifier   Notifier
	opts       SessionOptions
	log        *logrus.Logger

	mutex       sync.RWMutex
	posts       []models.FeedPost
	lastRefresh time.Time
	lastErr     error
	inFlight    map[string]struct{}
	// generation counts successful refreshes
	generation uint64
}

// NewSession creates a session with an empty collection
func NewSession(
	aggregator *Aggregator,
	mutator *Mutator,
	identity *CurrentUser,
	notifier Notifier,
	opts SessionOptions,
	log *logrus.Logger,
) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		aggregator: aggregator,
		mutator:    mutator,
		identity:   identity,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		posts:      []models.FeedPost{},
		inFlight:   make(map[string]struct{}),
	}
}

// Start refreshes the feed once and then on every tick until ctx is done
func (s *Session) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("Initial feed refresh failed")
	}

	if s.opts.RefreshInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	s.log.WithField("interval_sec", s.opts.RefreshInterval.Seconds()).Info("Feed polling started")
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.WithError(err).Warn("Feed refresh failed, keeping previous posts")
			}
		}
	}
}

// Refresh fetches the feed and replaces the collection. On failure the previous
// collection is kept and a notice is posted.
func (s *Session) Refresh(ctx context.Context) error {
	posts, err := s.aggregator.Fetch(ctx)
	if err != nil {
		s.mutex.Lock()
		s.lastErr = err
		s.mutex.Unlock()
		s.notifier.Notify(NewNotice(NoticeError, fetchFailedMessage, s.opts.Now()))
		return err
	}

	s.mutex.Lock()
	s.posts = posts
	s.lastRefresh = s.opts.Now()
	s.lastErr = nil
	s.generation++
	s.mutex.Unlock()

	s.log.WithField("post_count", len(posts)).Debug("Feed refreshed")
	if s.opts.OnRefresh != nil {
		s.opts.OnRefresh(s.State())
	}
	return nil
}

// State returns a copy of the collection with its freshness
func (s *Session) State() SessionState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state := SessionState{
		Posts:       append([]models.FeedPost(nil), s.posts...),
		LastRefresh: s.lastRefresh,
		Stale:       s.lastErr != nil,
	}
	if s.lastErr != nil {
		state.LastError = s.lastErr.Error()
	}
	return state
}

// View ranks the held collection under cfg
func (s *Session) View(cfg models.FilterConfig, now time.Time) []models.FeedPost {
	return Rank(s.State().Posts, cfg, now)
}

// SetIdentity signs in userID and recomputes which posts are liked
func (s *Session) SetIdentity(userID string) {
	s.identity.Set(userID)
	s.renormalize(userID)
}

// ClearIdentity signs out; no post is liked afterwards
func (s *Session) ClearIdentity() {
	s.identity.Clear()
	s.renormalize("")
}

func (s *Session) renormalize(userID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	posts := make([]models.FeedPost, len(s.posts))
	for i, p := range s.posts {
		posts[i] = normalizePost(p.Post, userID)
	}
	s.posts = posts
}

// ToggleLike flips the like of the current user on postID. The flip shows in the
// collection immediately; it is reverted if the remote write fails and replaced by
// the written likes if it succeeds. A refresh that lands while the write is in
// flight wins over the revert.
func (s *Session) ToggleLike(ctx context.Context, postID string) (models.FeedPost, error) {
	userID, ok := s.identity.UserID()
	if !ok {
		s.notifier.Notify(NewNotice(NoticeInfo, signInMessage, s.opts.Now()))
		return models.FeedPost{}, &MutationError{PostID: postID, Op: "toggle", Err: ErrNotAuthenticated}
	}

	s.mutex.Lock()
	if _, busy := s.inFlight[postID]; busy {
		s.mutex.Unlock()
		return models.FeedPost{}, &MutationError{PostID: postID, Op: "toggle", Err: ErrToggleInFlight}
	}
	current, found := s.findPost(postID)
	if !found {
		s.mutex.Unlock()
		return models.FeedPost{}, &MutationError{PostID: postID, Op: "toggle", Err: ErrPostNotFound}
	}
	previous := append([]string(nil), current.Likes...)
	s.replaceLikes(postID, ToggledLikes(previous, userID), userID)
	s.inFlight[postID] = struct{}{}
	flippedAt := s.generation
	s.mutex.Unlock()

	written, err := s.mutator.ToggleLike(ctx, postID, userID)

	// the identity may have changed while the write was in flight
	viewer, _ := s.identity.UserID()

	s.mutex.Lock()
	delete(s.inFlight, postID)
	if err != nil {
		if s.generation == flippedAt {
			s.replaceLikes(postID, previous, viewer)
		}
		s.mutex.Unlock()
		s.notifier.Notify(NewNotice(NoticeError, likeFailedMessage, s.opts.Now()))
		return models.FeedPost{}, err
	}
	s.replaceLikes(postID, written, viewer)
	updated, held := s.findPost(postID)
	s.mutex.Unlock()
	if !held {
		// a refresh dropped the post while the write was in flight
		raw := current.Post
		raw.Likes = written
		updated = normalizePost(raw, viewer)
	}

	if s.opts.RefreshAfterLike {
		if err := s.Refresh(ctx); err != nil {
			s.log.WithError(err).WithField("post_id", postID).Warn("Refresh after like failed")
		} else {
			s.mutex.RLock()
			if p, ok := s.findPost(postID); ok {
				updated = p
			}
			s.mutex.RUnlock()
		}
	}

	return updated, nil
}

// findPost must be called with the mutex held
func (s *Session) findPost(postID string) (models.FeedPost, bool) {
	for _, p := range s.posts {
		if p.ID == postID {
			return p, true
		}
	}
	return models.FeedPost{}, false
}

// replaceLikes swaps in a new collection in which postID carries likes.
// It must be called with the mutex held.
func (s *Session) replaceLikes(postID string, likes []string, userID string) {
	posts := make([]models.FeedPost, len(s.posts))
	for i, p := range s.posts {
		if p.ID == postID {
			raw := p.Post
			raw.Likes = append([]string(nil), likes...)
			p = normalizePost(raw, userID)
		}
		posts[i] = p
	}
	s.posts = posts
}
