package feed

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/brettboylen/forum-feed/models"
)

const (
	wordsPerMinute = 200
	// recencyDecayHours is the decay constant of the recency factor (not a half-life)
	recencyDecayHours = 24.0
)

// Weights of the trending score
type Weights struct {
	Likes    float64
	Comments float64
	ReadTime float64
	Recency  float64
}

// TrendingWeights are the weights used by Rank.
// Comments is not fed by any field of the ranking input and has no effect.
var TrendingWeights = Weights{
	Likes:    1,
	Comments: 0.8,
	ReadTime: 0.5,
	Recency:  2,
}

// ReadTimeMinutes estimates the minutes needed to read content
func ReadTimeMinutes(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

// RecencyFactor decays exponentially with the age of the post. Posts dated in the
// future get a factor above 1; the value is not clamped.
func RecencyFactor(createdAt, now time.Time) float64 {
	hoursSince := now.Sub(createdAt).Hours()
	return math.Exp(-hoursSince / recencyDecayHours)
}

// TrendingScore computes the trending score of a post at time now
func TrendingScore(post models.FeedPost, now time.Time) float64 {
	return float64(post.LikesCount)*TrendingWeights.Likes +
		float64(post.ReadTimeMinutes)*TrendingWeights.ReadTime +
		RecencyFactor(post.CreatedAt, now)*TrendingWeights.Recency
}

// Rank filters posts by the selected tags and orders them by the configured key.
// It does not modify posts. Equal keys are ordered by post id so the output is a
// pure function of its inputs; ascending order is the exact reverse of descending.
func Rank(posts []models.FeedPost, cfg models.FilterConfig, now time.Time) []models.FeedPost {
	ranked := filterByTags(posts, cfg.SelectedTags)

	switch cfg.SortBy {
	case models.SortLatest:
		sortDesc(ranked,
			func(a, b *models.FeedPost) bool { return a.CreatedAt.After(b.CreatedAt) },
			func(a, b *models.FeedPost) bool { return a.CreatedAt.Equal(b.CreatedAt) })
	case models.SortTop:
		sortDesc(ranked,
			func(a, b *models.FeedPost) bool { return a.LikesCount > b.LikesCount },
			func(a, b *models.FeedPost) bool { return a.LikesCount == b.LikesCount })
	default:
		scores := make(map[string]float64, len(ranked))
		for _, p := range ranked {
			scores[p.ID] = TrendingScore(p, now)
		}
		sortDesc(ranked,
			func(a, b *models.FeedPost) bool { return scores[a.ID] > scores[b.ID] },
			func(a, b *models.FeedPost) bool { return scores[a.ID] == scores[b.ID] })
	}

	if cfg.SortOrder == models.SortAsc {
		reverse(ranked)
	}
	return ranked
}

func filterByTags(posts []models.FeedPost, tags []string) []models.FeedPost {
	out := make([]models.FeedPost, 0, len(posts))
	if len(tags) == 0 {
		return append(out, posts...)
	}
	selected := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		selected[t] = struct{}{}
	}
	for _, p := range posts {
		if _, ok := selected[p.Label]; ok {
			out = append(out, p)
		}
	}
	return out
}

// sortDesc sorts by before, falling back to descending id when equal reports a tie
func sortDesc(posts []models.FeedPost, before, equal func(a, b *models.FeedPost) bool) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := &posts[i], &posts[j]
		if equal(a, b) {
			return a.ID > b.ID
		}
		return before(a, b)
	})
}

func reverse(posts []models.FeedPost) {
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
}
