package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
	"github.com/brettboylen/forum-feed/stats"
)

// Options configures the HTTP surface
type Options struct {
	// MaxRequestsPerMinute is the per-client request budget; zero disables limiting
	MaxRequestsPerMinute int
	Now                  func() time.Time
}

// Server exposes a feed session over HTTP
type Server struct {
	echo     *echo.Echo
	session  *feed.Session
	filters  feed.FilterStore
	comments *feed.Comments
	notices  *feed.NoticeBoard
	log      *logrus.Logger
	now      func() time.Time
}

type feedItem struct {
	models.FeedPost
	ReadTimeLabel string `json:"readTimeLabel"`
}

type feedResponse struct {
	Posts       []feedItem          `json:"posts"`
	Filters     models.FilterConfig `json:"filters"`
	Stale       bool                `json:"stale"`
	LastRefresh time.Time           `json:"lastRefresh"`
	LastError   string              `json:"lastError,omitempty"`
}

type sessionRequest struct {
	UserID string `json:"userId"`
}

type commentRequest struct {
	Content string `json:"content"`
}

// New creates the server and registers its routes
func New(
	session *feed.Session,
	filters feed.FilterStore,
	comments *feed.Comments,
	notices *feed.NoticeBoard,
	opts Options,
	log *logrus.Logger,
) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if opts.MaxRequestsPerMinute > 0 {
		e.Use(rateLimiter(opts.MaxRequestsPerMinute))
	}

	s := &Server{
		echo:     e,
		session:  session,
		filters:  filters,
		comments: comments,
		notices:  notices,
		log:      log,
		now:      opts.Now,
	}
	s.routes()
	return s
}

// Handler returns the http.Handler serving every route
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, port int) error {
	errCh := make(chan error, 1)
	go func() {
		serverAddr := fmt.Sprintf(":%d", port)
		s.log.WithField("port", port).Info("Starting API server")
		if err := s.echo.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

func rateLimiter(maxRequestsPerMinute int) echo.MiddlewareFunc {
	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

	tooMany := func(c echo.Context) error {
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded, please try again later",
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     max(1, maxRequestsPerMinute/6),
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return tooMany(c)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return tooMany(c)
		},
	})
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api")
	api.GET("/feed", s.getFeed)
	api.POST("/feed/refresh", s.refreshFeed)

	api.GET("/filters", s.getFilters)
	api.PUT("/filters", s.putFilters)
	api.DELETE("/filters", s.resetFilters)

	api.POST("/posts/:id/like", s.toggleLike)
	api.GET("/posts/:id/comments", s.listComments)
	api.GET("/posts/:id/comments/count", s.countComments)
	api.POST("/posts/:id/comments", s.createComment)

	api.PUT("/session", s.signIn)
	api.DELETE("/session", s.signOut)

	api.GET("/notices", s.listNotices)
	api.DELETE("/notices/:id", s.dismissNotice)

	api.GET("/stats", s.getStats)
	api.GET("/stats/:label", s.getLabelStats)
}

func (s *Server) feedView() feedResponse {
	cfg := s.filters.Get()
	state := s.session.State()
	ranked := feed.Rank(state.Posts, cfg, s.now())

	items := make([]feedItem, 0, len(ranked))
	for _, p := range ranked {
		items = append(items, feedItem{FeedPost: p, ReadTimeLabel: p.ReadTimeLabel()})
	}

	return feedResponse{
		Posts:       items,
		Filters:     cfg,
		Stale:       state.Stale,
		LastRefresh: state.LastRefresh,
		LastError:   state.LastError,
	}
}

func (s *Server) getFeed(c echo.Context) error {
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		// on failure the previous posts are served marked stale
		_ = s.session.Refresh(c.Request().Context())
	}
	return c.JSON(http.StatusOK, s.feedView())
}

func (s *Server) refreshFeed(c echo.Context) error {
	if err := s.session.Refresh(c.Request().Context()); err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, s.feedView())
}

func (s *Server) getFilters(c echo.Context) error {
	return c.JSON(http.StatusOK, s.filters.Get())
}

func (s *Server) putFilters(c echo.Context) error {
	cfg := models.DefaultFilterConfig()
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid filter configuration"})
	}
	if cfg.SelectedTags == nil {
		cfg.SelectedTags = []string{}
	}
	if err := s.filters.Set(cfg); err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, s.filters.Get())
}

func (s *Server) resetFilters(c echo.Context) error {
	s.filters.Reset()
	return c.JSON(http.StatusOK, s.filters.Get())
}

func (s *Server) toggleLike(c echo.Context) error {
	post, err := s.session.ToggleLike(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, feedItem{FeedPost: post, ReadTimeLabel: post.ReadTimeLabel()})
}

func (s *Server) listComments(c echo.Context) error {
	comments, err := s.comments.List(c.Request().Context(), c.Param("id"), c.QueryParam("before"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, comments)
}

func (s *Server) countComments(c echo.Context) error {
	count, err := s.comments.Count(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (s *Server) createComment(c echo.Context) error {
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid comment"})
	}
	comment, err := s.comments.Create(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (s *Server) signIn(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
	}
	s.session.SetIdentity(req.UserID)
	s.log.WithField("user_id", req.UserID).Info("Signed in")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) signOut(c echo.Context) error {
	s.session.ClearIdentity()
	s.log.Info("Signed out")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listNotices(c echo.Context) error {
	return c.JSON(http.StatusOK, s.notices.Active(s.now()))
}

func (s *Server) dismissNotice(c echo.Context) error {
	if !s.notices.Dismiss(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "notice not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) statistics() models.Statistics {
	return stats.Summarize(s.session.State(), stats.DefaultTopPostsLimit, stats.DefaultTopCreatorsLimit, s.now())
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.statistics())
}

func (s *Server) getLabelStats(c echo.Context) error {
	label := c.Param("label")
	labelStats, exists := s.statistics().LabelStats[label]
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("No statistics available for label %s", label),
		})
	}
	return c.JSON(http.StatusOK, labelStats)
}

// errorJSON maps feed errors onto status codes; anything else is a store failure
func (s *Server) errorJSON(c echo.Context, err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, feed.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, feed.ErrToggleInFlight):
		status = http.StatusConflict
	case errors.Is(err, feed.ErrPostNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feed.ErrEmptyComment),
		errors.Is(err, feed.ErrInvalidSort),
		errors.Is(err, feed.ErrUnknownLabel):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	s.log.WithError(err).WithFields(logrus.Fields{
		"path":   c.Path(),
		"status": status,
	}).Debug("Request failed")

	return c.JSON(status, map[string]string{"error": err.Error()})
}
