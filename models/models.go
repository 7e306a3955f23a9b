package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Post represents a forum post as stored by the remote store
type Post struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Content    *string     `json:"content"`
	BannerURL  *string     `json:"banner_url"`
	Label      string      `json:"label"`
	LabelColor string      `json:"label_color"`
	CreatedAt  time.Time   `json:"created_at"`
	Likes      []string    `json:"likes"`
	CreatorID  *string     `json:"creator_id"`
	Creator    NullCreator `json:"creator"`
}

// Text returns the post body, or an empty string when the post has none
func (p *Post) Text() string {
	if p.Content == nil {
		return ""
	}
	return *p.Content
}

// Creator is the denormalized profile summary joined onto posts and comments
type Creator struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url"`
	FullName  string `json:"full_name"`
}

// NullCreator is a Creator that may be missing, e.g. when the profile join found no row.
type NullCreator struct {
	Creator Creator
	Valid   bool
}

// SomeCreator wraps a resolved creator summary
func SomeCreator(c Creator) NullCreator {
	return NullCreator{Creator: c, Valid: true}
}

// Get returns the creator and whether it was resolved
func (nc NullCreator) Get() (Creator, bool) {
	return nc.Creator, nc.Valid
}

func (nc NullCreator) MarshalJSON() ([]byte, error) {
	if !nc.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nc.Creator)
}

func (nc *NullCreator) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*nc = NullCreator{}
		return nil
	}
	var c Creator
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("failed to decode creator: %w", err)
	}
	*nc = SomeCreator(c)
	return nil
}

// FeedPost is a post annotated with the fields computed on the client
type FeedPost struct {
	Post
	LikesCount      int  `json:"likesCount"`
	IsLiked         bool `json:"isLiked"`
	ReadTimeMinutes int  `json:"readTimeMinutes"`
}

// ReadTimeLabel renders the estimated read time for display
func (fp *FeedPost) ReadTimeLabel() string {
	if fp.ReadTimeMinutes <= 0 {
		return "< 1 min read"
	}
	return fmt.Sprintf("%d min read", fp.ReadTimeMinutes)
}

// Comment represents a comment on a post
type Comment struct {
	ID        string      `json:"id"`
	PostID    string      `json:"postid"`
	CreatorID string      `json:"creatorid"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Likes     []string    `json:"likes"`
	Creator   NullCreator `json:"creator"`
}

// NewComment holds the fields needed to create a comment
type NewComment struct {
	PostID    string   `json:"postid"`
	CreatorID string   `json:"creatorid"`
	Content   string   `json:"content"`
	Likes     []string `json:"likes"`
}
