package models

import "time"

// LabelStats holds statistics for a single label
type LabelStats struct {
	PostCount     int      `json:"post_count"`
	LikeCount     int      `json:"like_count"`
	MostLikedPost FeedPost `json:"most_liked_post"`
}

// Statistics summarizes the posts currently held by the feed
type Statistics struct {
	TotalPosts             int                   `json:"total_posts"`
	TotalLikes             int                   `json:"total_likes"`
	TopPostsByLikes        []FeedPost            `json:"top_posts_by_likes"`
	TopCreatorsByPostCount map[string]int        `json:"top_creators_by_post_count"`
	LabelStats             map[string]LabelStats `json:"label_stats"`
	LastRefresh            time.Time             `json:"last_refresh"`
	GeneratedAt            time.Time             `json:"generated_at"`
}
