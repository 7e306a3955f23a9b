package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

// timeLayout is fixed width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore is a feed.Store backed by a local SQLite file, used for development
// and for running without the hosted store
type SQLiteStore struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
	now   func() time.Time
}

var _ feed.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string, log *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is its own database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{
		db:  db,
		log: log,
		now: time.Now,
	}

	if err := store.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.db.Close()
}

// initTables creates the tables if they don't exist. The shape follows the hosted
// schema; likes are stored as a JSON array.
func (s *SQLiteStore) initTables() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT,
		banner_url TEXT,
		label TEXT NOT NULL,
		label_color TEXT NOT NULL,
		created_at TEXT NOT NULL,
		likes TEXT NOT NULL DEFAULT '[]',
		creator_id TEXT
	);
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		postid TEXT NOT NULL,
		creatorid TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		likes TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_comments_postid ON comments(postid, created_at DESC);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveProfile inserts or replaces a profile
func (s *SQLiteStore) SaveProfile(ctx context.Context, id string, creator models.Creator) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles (id, username, avatar_url, full_name) VALUES (?, ?, ?, ?)`,
		id, creator.Username, creator.AvatarURL, creator.FullName,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// SavePost inserts or replaces a post. The joined creator is ignored; it is
// resolved from profiles on read.
func (s *SQLiteStore) SavePost(ctx context.Context, post *models.Post) error {
	likes, err := encodeLikes(post.Likes)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
	INSERT OR REPLACE INTO posts (
		id, title, content, banner_url, label, label_color, created_at, likes, creator_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		post.ID, post.Title, post.Content, post.BannerURL, post.Label, post.LabelColor,
		formatTime(post.CreatedAt), likes, post.CreatorID,
	)
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

// ListPosts returns every post, newest first, with the creator profile when it exists
func (s *SQLiteStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := `
	SELECT p.id, p.title, p.content, p.banner_url, p.label, p.label_color, p.created_at,
		p.likes, p.creator_id, pr.id, pr.avatar_url, pr.full_name
	FROM posts p
	LEFT JOIN profiles pr ON pr.id = p.creator_id
	ORDER BY p.created_at DESC, p.id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		var createdAt, likes string
		var profileID, avatarURL, fullName sql.NullString

		err := rows.Scan(
			&post.ID, &post.Title, &post.Content, &post.BannerURL, &post.Label, &post.LabelColor,
			&createdAt, &likes, &post.CreatorID, &profileID, &avatarURL, &fullName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		if post.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("post %s: %w", post.ID, err)
		}
		if post.Likes, err = decodeLikes(likes); err != nil {
			return nil, fmt.Errorf("post %s: %w", post.ID, err)
		}
		if profileID.Valid {
			post.Creator = models.SomeCreator(models.Creator{
				AvatarURL: avatarURL.String,
				FullName:  fullName.String,
			})
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

func (s *SQLiteStore) GetPostLikes(ctx context.Context, postID string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var likes string
	err := s.db.QueryRowContext(ctx, `SELECT likes FROM posts WHERE id = ?`, postID).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read likes of post %s: %w", postID, err)
	}

	return decodeLikes(likes)
}

func (s *SQLiteStore) UpdatePostLikes(ctx context.Context, postID string, likes []string) error {
	encoded, err := encodeLikes(likes)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE posts SET likes = ? WHERE id = ?`, encoded, postID)
	if err != nil {
		return fmt.Errorf("failed to update likes of post %s: %w", postID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, postID, before string, limit int) ([]models.Comment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := `
	SELECT c.id, c.postid, c.creatorid, c.content, c.created_at, c.likes,
		pr.id, pr.username, pr.avatar_url, pr.full_name
	FROM comments c
	LEFT JOIN profiles pr ON pr.id = c.creatorid
	WHERE c.postid = ? AND (? = '' OR c.id < ?)
	ORDER BY c.created_at DESC, c.id DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, postID, before, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments of post %s: %w", postID, err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return comments, nil
}

func (s *SQLiteStore) CountComments(ctx context.Context, postID string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE postid = ?`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}

	return count, nil
}

// CreateComment stores a comment under a new time-ordered id
func (s *SQLiteStore) CreateComment(ctx context.Context, nc models.NewComment) (models.Comment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to generate comment id: %w", err)
	}
	likes, err := encodeLikes(nc.Likes)
	if err != nil {
		return models.Comment{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, nc.PostID).Scan(&exists)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to look up post %s: %w", nc.PostID, err)
	}
	if exists == 0 {
		return models.Comment{}, fmt.Errorf("post %s: %w", nc.PostID, feed.ErrPostNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO comments (id, postid, creatorid, content, created_at, likes) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), nc.PostID, nc.CreatorID, nc.Content, formatTime(s.now()), likes,
	)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to insert comment: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
	SELECT c.id, c.postid, c.creatorid, c.content, c.created_at, c.likes,
		pr.id, pr.username, pr.avatar_url, pr.full_name
	FROM comments c
	LEFT JOIN profiles pr ON pr.id = c.creatorid
	WHERE c.id = ?
	`, id.String())

	return scanComment(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (models.Comment, error) {
	var comment models.Comment
	var createdAt, likes string
	var profileID, username, avatarURL, fullName sql.NullString

	err := row.Scan(
		&comment.ID, &comment.PostID, &comment.CreatorID, &comment.Content, &createdAt, &likes,
		&profileID, &username, &avatarURL, &fullName,
	)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to scan comment: %w", err)
	}

	if comment.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Comment{}, fmt.Errorf("comment %s: %w", comment.ID, err)
	}
	if comment.Likes, err = decodeLikes(likes); err != nil {
		return models.Comment{}, fmt.Errorf("comment %s: %w", comment.ID, err)
	}
	if profileID.Valid {
		comment.Creator = models.SomeCreator(models.Creator{
			Username:  username.String,
			AvatarURL: avatarURL.String,
			FullName:  fullName.String,
		})
	}
	return comment, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", value, err)
	}
	return t, nil
}

func encodeLikes(likes []string) (string, error) {
	if likes == nil {
		likes = []string{}
	}
	data, err := json.Marshal(likes)
	if err != nil {
		return "", fmt.Errorf("failed to encode likes: %w", err)
	}
	return string(data), nil
}

// decodeLikes reads a JSON likes array, dropping null entries
func decodeLikes(value string) ([]string, error) {
	var raw []*string
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode likes: %w", err)
	}
	likes := make([]string, 0, len(raw))
	for _, id := range raw {
		if id != nil {
			likes = append(likes, *id)
		}
	}
	return likes, nil
}
