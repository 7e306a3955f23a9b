package db

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := NewSQLiteStore(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, "c1", models.Creator{Username: "ada", AvatarURL: "https://img/ada.png", FullName: "Ada Lovelace"}))

	posts := []models.Post{
		{
			ID: "p1", Title: "Older", Content: strPtr("some text"), Label: "Question", LabelColor: "#111111",
			CreatedAt: baseTime.Add(-48 * time.Hour), Likes: []string{"u1"}, CreatorID: strPtr("c1"),
		},
		{
			ID: "p2", Title: "Newer", Label: "Discussion", LabelColor: "#222222",
			CreatedAt: baseTime.Add(-time.Hour), CreatorID: strPtr("missing"),
		},
	}
	for i := range posts {
		require.NoError(t, store.SavePost(ctx, &posts[i]))
	}
}

func TestSQLiteListPosts(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "p2", posts[0].ID)
	assert.Nil(t, posts[0].Content)
	assert.Equal(t, []string{}, posts[0].Likes)
	assert.False(t, posts[0].Creator.Valid)
	assert.Equal(t, baseTime.Add(-time.Hour), posts[0].CreatedAt)

	assert.Equal(t, "p1", posts[1].ID)
	assert.Equal(t, "some text", posts[1].Text())
	assert.Equal(t, []string{"u1"}, posts[1].Likes)
	creator, ok := posts[1].Creator.Get()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", creator.FullName)
	assert.Empty(t, creator.Username)
}

func TestSQLiteLikes(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	likes, err := store.GetPostLikes(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, likes)

	require.NoError(t, store.UpdatePostLikes(ctx, "p1", []string{"u1", "u2"}))
	likes, err = store.GetPostLikes(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, likes)

	require.NoError(t, store.UpdatePostLikes(ctx, "p1", nil))
	likes, err = store.GetPostLikes(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, likes)

	_, err = store.GetPostLikes(ctx, "nope")
	assert.ErrorIs(t, err, feed.ErrPostNotFound)
	assert.ErrorIs(t, store.UpdatePostLikes(ctx, "nope", []string{"u1"}), feed.ErrPostNotFound)
}

func TestSQLiteComments(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	tick := baseTime
	store.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	var created []models.Comment
	for _, text := range []string{"one", "two", "three"} {
		c, err := store.CreateComment(ctx, models.NewComment{PostID: "p1", CreatorID: "c1", Content: text})
		require.NoError(t, err)
		created = append(created, c)
	}

	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, []string{}, created[0].Likes)
	assert.Equal(t, "ada", created[0].Creator.Creator.Username)
	assert.Equal(t, baseTime.Add(time.Minute), created[0].CreatedAt)

	page, err := store.ListComments(ctx, "p1", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].Content)
	assert.Equal(t, "two", page[1].Content)

	next, err := store.ListComments(ctx, "p1", page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "one", next[0].Content)

	count, err := store.CountComments(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.CountComments(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.CreateComment(ctx, models.NewComment{PostID: "nope", CreatorID: "c1", Content: "x"})
	assert.ErrorIs(t, err, feed.ErrPostNotFound)
}

func TestSQLiteWithFeed(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	log := logrus.New()
	log.SetOutput(io.Discard)

	mutator := feed.NewMutator(store, log)
	_, err := mutator.ToggleLike(context.Background(), "p2", "u5")
	require.NoError(t, err)

	posts, err := feed.NewAggregator(store, feed.NewCurrentUser("u5"), log).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.True(t, posts[0].IsLiked)
	assert.Equal(t, 1, posts[0].LikesCount)
}

func TestDecodeLikes(t *testing.T) {
	likes, err := decodeLikes(`["u1",null,"u2"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, likes)

	likes, err = decodeLikes(`null`)
	require.NoError(t, err)
	assert.Equal(t, []string{}, likes)

	_, err = decodeLikes(`{`)
	assert.Error(t, err)
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 5, 1, 14, 30, 15, 123456789, time.FixedZone("CEST", 2*60*60))
	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.True(t, in.Truncate(time.Microsecond).Equal(out))
	assert.Equal(t, time.UTC, out.Location())
}
