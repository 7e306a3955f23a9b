package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

const testAPIKey = "anon-key"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", testAPIKey, 5*time.Second, 6000, testLogger())
}

func TestListPosts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/posts", r.URL.Path)
		assert.Equal(t, postsSelect, r.URL.Query().Get("select"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"id":"p1","title":"Need help","content":"some words here","banner_url":null,
			 "label":"Help Required","label_color":"#ff0000","created_at":"2024-05-01T11:00:00.123456+00:00",
			 "likes":["u1",null,"u2"],"creator_id":"c1",
			 "creator":{"avatar_url":"https://img/c1.png","full_name":"Grace Hopper"}},
			{"id":"p2","title":"Orphan","content":null,"banner_url":"https://img/b.png",
			 "label":"Other","label_color":"#cccccc","created_at":"2024-04-30T11:00:00+00:00",
			 "likes":null,"creator_id":null,"creator":null}
		]`)
	})

	posts, err := client.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, []string{"u1", "u2"}, posts[0].Likes)
	assert.Equal(t, "some words here", posts[0].Text())
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 123456000, time.UTC), posts[0].CreatedAt.UTC())
	creator, ok := posts[0].Creator.Get()
	require.True(t, ok)
	assert.Equal(t, "Grace Hopper", creator.FullName)

	assert.Equal(t, "p2", posts[1].ID)
	assert.Empty(t, posts[1].Likes)
	assert.Nil(t, posts[1].Content)
	assert.Nil(t, posts[1].CreatorID)
	assert.False(t, posts[1].Creator.Valid)
	require.NotNil(t, posts[1].BannerURL)
	assert.Equal(t, "https://img/b.png", *posts[1].BannerURL)
}

func TestListPostsStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"message":"upstream down"}`)
	})

	_, err := client.ListPosts(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "upstream down")
}

func TestListPostsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"not":"an array"`)
	})

	_, err := client.ListPosts(context.Background())
	assert.ErrorContains(t, err, "failed to decode")
}

func TestGetPostLikes(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expected    []string
		expectedErr error
	}{
		{name: "Likes", body: `[{"likes":["u1","u2"]}]`, expected: []string{"u1", "u2"}},
		{name: "Null entries dropped", body: `[{"likes":[null,"u2",""]}]`, expected: []string{"u2"}},
		{name: "Null list", body: `[{"likes":null}]`, expected: []string{}},
		{name: "Unknown post", body: `[]`, expectedErr: feed.ErrPostNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "likes", r.URL.Query().Get("select"))
				assert.Equal(t, "eq.p1", r.URL.Query().Get("id"))
				io.WriteString(w, tc.body)
			})

			likes, err := client.GetPostLikes(context.Background(), "p1")
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, likes)
		})
	}
}

func TestUpdatePostLikes(t *testing.T) {
	var received map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.p1", r.URL.Query().Get("id"))
		assert.Equal(t, "id", r.URL.Query().Get("select"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		io.WriteString(w, `[{"id":"p1"}]`)
	})

	require.NoError(t, client.UpdatePostLikes(context.Background(), "p1", nil))
	assert.Equal(t, map[string][]string{"likes": {}}, received)

	require.NoError(t, client.UpdatePostLikes(context.Background(), "p1", []string{"u1", "u3"}))
	assert.Equal(t, []string{"u1", "u3"}, received["likes"])
}

func TestUpdatePostLikesMissingPost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		io.WriteString(w, `[]`)
	})

	err := client.UpdatePostLikes(context.Background(), "gone", []string{"u1"})
	assert.ErrorIs(t, err, feed.ErrPostNotFound)
}

func TestListComments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/rest/v1/comments", r.URL.Path)
		assert.Equal(t, commentsSelect, q.Get("select"))
		assert.Equal(t, "eq.p1", q.Get("postid"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "lt.c9", q.Get("id"))
		io.WriteString(w, `[{"id":"c8","postid":"p1","creatorid":"u1","content":"hi",
			"created_at":"2024-05-01T11:00:00+00:00","likes":[null],
			"creator":{"username":"ada","avatar_url":"","full_name":"Ada"}}]`)
	})

	comments, err := client.ListComments(context.Background(), "p1", "c9", 20)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c8", comments[0].ID)
	assert.Empty(t, comments[0].Likes)
	assert.Equal(t, "ada", comments[0].Creator.Creator.Username)
}

func TestCountComments(t *testing.T) {
	tests := []struct {
		name         string
		contentRange string
		expected     int
		expectErr    bool
	}{
		{name: "Range with total", contentRange: "0-19/42", expected: 42},
		{name: "Empty range", contentRange: "*/0", expected: 0},
		{name: "Missing header", contentRange: "", expectErr: true},
		{name: "Unknown total", contentRange: "0-19/*", expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
				assert.Equal(t, "eq.p1", r.URL.Query().Get("postid"))
				if tc.contentRange != "" {
					w.Header().Set("Content-Range", tc.contentRange)
				}
				w.WriteHeader(http.StatusOK)
			})

			count, err := client.CountComments(context.Background(), "p1")
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, count)
		})
	}
}

func TestCreateComment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body models.NewComment
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body.PostID)
		assert.Equal(t, "u1", body.CreatorID)
		assert.Equal(t, []string{}, body.Likes)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `[{"id":"c1","postid":"p1","creatorid":"u1","content":"`+body.Content+`",
			"created_at":"2024-05-01T12:00:00+00:00","likes":[],"creator":null}]`)
	})

	comment, err := client.CreateComment(context.Background(), models.NewComment{PostID: "p1", CreatorID: "u1", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "c1", comment.ID)
	assert.Equal(t, "hello", comment.Content)
	assert.False(t, comment.Creator.Valid)
}

func TestRequestHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListPosts(ctx)
	assert.Error(t, err)
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		value     string
		expected  int
		expectErr bool
	}{
		{value: "0-24/3573458", expected: 3573458},
		{value: "*/0", expected: 0},
		{value: "0-9/ 10", expected: 10},
		{value: "0-9", expectErr: true},
		{value: "0-9/-1", expectErr: true},
		{value: "", expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			total, err := parseContentRangeTotal(tc.value)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, total)
		})
	}
}

func TestDropNulls(t *testing.T) {
	a, b := "u1", ""
	likes, dropped := dropNulls([]*string{&a, nil, &b})
	assert.Equal(t, []string{"u1"}, likes)
	assert.Equal(t, 2, dropped)
}
