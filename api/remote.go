package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

const (
	restPath = "/rest/v1"

	postsSelect    = "*,creator:profiles!creator_id(avatar_url,full_name)"
	commentsSelect = "*,creator:profiles!creatorid(username,avatar_url,full_name)"

	defaultMaxRequestsPerMinute = 120
	maxErrorBodyBytes           = 4096
)

// StatusError is returned when the store answers with a non-2xx status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the hosted data store over its REST interface
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

var _ feed.Store = (*Client)(nil)

// NewClient creates a new store client. Outbound requests are spread evenly so that
// no more than maxRequestsPerMinute are sent.
func NewClient(storeURL, apiKey string, timeout time.Duration, maxRequestsPerMinute int, log *logrus.Logger) *Client {
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = defaultMaxRequestsPerMinute
	}

	return &Client{
		baseURL:    strings.TrimRight(storeURL, "/") + restPath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(maxRequestsPerMinute)/60.0), 1),
		log:        log,
	}
}

// rawPost mirrors a post row; likes may hold nulls written by other clients
type rawPost struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Content    *string            `json:"content"`
	BannerURL  *string            `json:"banner_url"`
	Label      string             `json:"label"`
	LabelColor string             `json:"label_color"`
	CreatedAt  time.Time          `json:"created_at"`
	Likes      []*string          `json:"likes"`
	CreatorID  *string            `json:"creator_id"`
	Creator    models.NullCreator `json:"creator"`
}

type rawComment struct {
	ID        string             `json:"id"`
	PostID    string             `json:"postid"`
	CreatorID string             `json:"creatorid"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
	Likes     []*string          `json:"likes"`
	Creator   models.NullCreator `json:"creator"`
}

// ListPosts fetches every post, newest first, with the creator profile joined
func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	query := url.Values{}
	query.Set("select", postsSelect)
	query.Set("order", "created_at.desc")

	var rows []rawPost
	if err := c.getJSON(ctx, "/posts", query, &rows); err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		likes, nulls := dropNulls(row.Likes)
		dropped += nulls
		posts = append(posts, models.Post{
			ID:         row.ID,
			Title:      row.Title,
			Content:    row.Content,
			BannerURL:  row.BannerURL,
			Label:      row.Label,
			LabelColor: row.LabelColor,
			CreatedAt:  row.CreatedAt,
			Likes:      likes,
			CreatorID:  row.CreatorID,
			Creator:    row.Creator,
		})
	}

	c.log.WithFields(logrus.Fields{
		"post_count":         len(posts),
		"dropped_null_likes": dropped,
	}).Debug("Fetched posts from store")

	return posts, nil
}

// GetPostLikes reads the current likes of a single post
func (c *Client) GetPostLikes(ctx context.Context, postID string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "likes")
	query.Set("id", "eq."+postID)

	var rows []struct {
		Likes []*string `json:"likes"`
	}
	if err := c.getJSON(ctx, "/posts", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}

	likes, nulls := dropNulls(rows[0].Likes)
	if nulls > 0 {
		c.log.WithFields(logrus.Fields{
			"post_id":            postID,
			"dropped_null_likes": nulls,
		}).Debug("Dropped null entries from likes")
	}
	return likes, nil
}

// UpdatePostLikes replaces the likes of a post. The store answers a PATCH that
// matched no row with an empty representation, which is reported as ErrPostNotFound.
func (c *Client) UpdatePostLikes(ctx context.Context, postID string, likes []string) error {
	if likes == nil {
		likes = []string{}
	}
	query := url.Values{}
	query.Set("id", "eq."+postID)
	query.Set("select", "id")

	body := map[string][]string{"likes": likes}
	resp, err := c.do(ctx, http.MethodPatch, "/posts", query, body, "return=representation")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return fmt.Errorf("failed to decode updated post %s: %w", postID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}
	return nil
}

// ListComments fetches one page of comments, newest first
func (c *Client) ListComments(ctx context.Context, postID, before string, limit int) ([]models.Comment, error) {
	query := url.Values{}
	query.Set("select", commentsSelect)
	query.Set("postid", "eq."+postID)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))
	if before != "" {
		query.Set("id", "lt."+before)
	}

	var rows []rawComment
	if err := c.getJSON(ctx, "/comments", query, &rows); err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.toComment())
	}
	return comments, nil
}

// CountComments asks the store for the exact number of comments on a post
func (c *Client) CountComments(ctx context.Context, postID string) (int, error) {
	query := url.Values{}
	query.Set("postid", "eq."+postID)

	resp, err := c.do(ctx, http.MethodHead, "/comments", query, nil, "count=exact")
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	count, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}
	return count, nil
}

// CreateComment inserts a comment and returns the stored row with its creator
func (c *Client) CreateComment(ctx context.Context, comment models.NewComment) (models.Comment, error) {
	if comment.Likes == nil {
		comment.Likes = []string{}
	}
	query := url.Values{}
	query.Set("select", commentsSelect)

	resp, err := c.do(ctx, http.MethodPost, "/comments", query, comment, "return=representation")
	if err != nil {
		return models.Comment{}, err
	}
	defer resp.Body.Close()

	var rows []rawComment
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return models.Comment{}, fmt.Errorf("failed to decode created comment: %w", err)
	}
	if len(rows) == 0 {
		return models.Comment{}, errors.New("store returned no created comment")
	}
	return rows[0].toComment(), nil
}

func (rc rawComment) toComment() models.Comment {
	likes, _ := dropNulls(rc.Likes)
	return models.Comment{
		ID:        rc.ID,
		PostID:    rc.PostID,
		CreatorID: rc.CreatorID,
		Content:   rc.Content,
		CreatedAt: rc.CreatedAt,
		Likes:     likes,
		Creator:   rc.Creator,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", path, err)
	}
	return nil
}

// do sends a request once the limiter allows it. The caller closes the body of
// a successful response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.log.WithFields(logrus.Fields{
			"method":        method,
			"path":          path,
			"status_code":   resp.StatusCode,
			"response_body": string(data),
		}).Error("Store error response")
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}

	return resp, nil
}

// dropNulls removes null and empty ids and reports how many were removed
func dropNulls(likes []*string) ([]string, int) {
	out := make([]string, 0, len(likes))
	for _, id := range likes {
		if id == nil || *id == "" {
			continue
		}
		out = append(out, *id)
	}
	return out, len(likes) - len(out)
}

// parseContentRangeTotal reads the total from a Content-Range header such as
// "0-19/42" or "*/0"
func parseContentRangeTotal(value string) (int, error) {
	slash := strings.LastIndex(value, "/")
	if slash < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", value)
	}

	total, err := strconv.Atoi(strings.TrimSpace(value[slash+1:]))
	if err != nil || total < 0 {
		return 0, fmt.Errorf("malformed Content-Range %q", value)
	}
	return total, nil
}
