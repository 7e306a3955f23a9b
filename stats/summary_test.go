package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func testState() feed.SessionState {
	posts := []models.Post{
		{ID: "1", Label: "Question", CreatedAt: testNow.Add(-time.Hour), Likes: []string{"u1", "u2"}, CreatorID: strPtr("c1")},
		{ID: "2", Label: "Question", CreatedAt: testNow.Add(-2 * time.Hour), Likes: []string{"u1"}, CreatorID: strPtr("c1")},
		{ID: "3", Label: "Discussion", CreatedAt: testNow.Add(-3 * time.Hour), Likes: []string{"u1", "u2", "u3"}, CreatorID: strPtr("c2")},
		{ID: "4", Label: "Other", CreatedAt: testNow.Add(-4 * time.Hour)},
	}
	return feed.SessionState{
		Posts:       feed.Normalize(posts, ""),
		LastRefresh: testNow.Add(-time.Minute),
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize(testState(), 2, 1, testNow)

	assert.Equal(t, 4, stats.TotalPosts)
	assert.Equal(t, 6, stats.TotalLikes)
	require.Len(t, stats.TopPostsByLikes, 2)
	assert.Equal(t, "3", stats.TopPostsByLikes[0].ID)
	assert.Equal(t, "1", stats.TopPostsByLikes[1].ID)

	assert.Equal(t, map[string]int{"c1": 2}, stats.TopCreatorsByPostCount)

	question := stats.LabelStats["Question"]
	assert.Equal(t, 2, question.PostCount)
	assert.Equal(t, 3, question.LikeCount)
	assert.Equal(t, "1", question.MostLikedPost.ID)
	assert.Equal(t, 1, stats.LabelStats["Other"].PostCount)
	assert.Len(t, stats.LabelStats, 3)

	assert.Equal(t, testNow.Add(-time.Minute), stats.LastRefresh)
	assert.Equal(t, testNow, stats.GeneratedAt)
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(feed.SessionState{}, 0, 0, testNow)
	assert.Equal(t, 0, stats.TotalPosts)
	assert.Empty(t, stats.TopPostsByLikes)
	assert.Empty(t, stats.LabelStats)
	assert.NotNil(t, stats.TopCreatorsByPostCount)
}

func TestTopKeys(t *testing.T) {
	counts := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []string{"c", "a", "b"}, topKeys(counts, 3))
	assert.Equal(t, []string{"c", "a", "b", "d"}, topKeys(counts, 10))
}
