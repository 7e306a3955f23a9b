package stats

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

const (
	DefaultTopPostsLimit    = 10
	DefaultTopCreatorsLimit = 10
)

// Summarize computes statistics over the posts of one feed snapshot
func Summarize(state feed.SessionState, topPostsLimit, topCreatorsLimit int, now time.Time) models.Statistics {
	if topPostsLimit <= 0 {
		topPostsLimit = DefaultTopPostsLimit
	}
	if topCreatorsLimit <= 0 {
		topCreatorsLimit = DefaultTopCreatorsLimit
	}
	byLikes := feed.Rank(state.Posts, models.FilterConfig{SortBy: models.SortTop, SortOrder: models.SortDesc}, now)

	stats := models.Statistics{
		TotalPosts:             len(byLikes),
		TopPostsByLikes:        byLikes[:min(topPostsLimit, len(byLikes))],
		TopCreatorsByPostCount: make(map[string]int),
		LabelStats:             make(map[string]models.LabelStats),
		LastRefresh:            state.LastRefresh,
		GeneratedAt:            now,
	}

	creators := make(map[string]int)
	// byLikes is ordered, so the first post seen for a label is its most liked
	for _, post := range byLikes {
		stats.TotalLikes += post.LikesCount

		if post.CreatorID != nil && *post.CreatorID != "" {
			creators[*post.CreatorID]++
		}

		labelStats, seen := stats.LabelStats[post.Label]
		if !seen {
			labelStats.MostLikedPost = post
		}
		labelStats.PostCount++
		labelStats.LikeCount += post.LikesCount
		stats.LabelStats[post.Label] = labelStats
	}

	for _, id := range topKeys(creators, topCreatorsLimit) {
		stats.TopCreatorsByPostCount[id] = creators[id]
	}

	return stats
}

// topKeys returns up to limit keys with the highest counts, ties by key
func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] == counts[keys[j]] {
			return keys[i] < keys[j]
		}
		return counts[keys[i]] > counts[keys[j]]
	})
	return keys[:min(limit, len(keys))]
}

// LogStatistics logs a one-line summary of stats
func LogStatistics(log *logrus.Logger, stats models.Statistics) {
	log.WithFields(logrus.Fields{
		"total_posts":      stats.TotalPosts,
		"total_likes":      stats.TotalLikes,
		"label_count":      len(stats.LabelStats),
		"creator_count":    len(stats.TopCreatorsByPostCount),
		"last_refresh_age": stats.GeneratedAt.Sub(stats.LastRefresh).Round(time.Second).String(),
	}).Info("Statistics updated")
}
