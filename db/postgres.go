package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/models"
)

// PostgresStore is a feed.Store that connects straight to the database behind the
// hosted store. It reads and writes the existing schema and never creates tables.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

var _ feed.Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pool of at most maxConns connections to dsn
func NewPostgresStore(ctx context.Context, dsn string, maxConns int, log *logrus.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.WithFields(logrus.Fields{
		"host":      cfg.ConnConfig.Host,
		"database":  cfg.ConnConfig.Database,
		"max_conns": cfg.MaxConns,
	}).Info("Connected to PostgreSQL")

	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// nullable likes arrays and null entries both come back as clean text arrays
const likesColumn = `array_remove(COALESCE(%s::text[], '{}'), NULL)`

func (s *PostgresStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	query := fmt.Sprintf(`
	SELECT p.id::text, p.title, p.content, p.banner_url, p.label, p.label_color, p.created_at,
		%s, p.creator_id::text, pr.id IS NOT NULL, COALESCE(pr.avatar_url, ''), COALESCE(pr.full_name, '')
	FROM posts p
	LEFT JOIN profiles pr ON pr.id = p.creator_id
	ORDER BY p.created_at DESC
	`, fmt.Sprintf(likesColumn, "p.likes"))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		var hasCreator bool
		var creator models.Creator

		err := rows.Scan(
			&post.ID, &post.Title, &post.Content, &post.BannerURL, &post.Label, &post.LabelColor,
			&post.CreatedAt, &post.Likes, &post.CreatorID, &hasCreator, &creator.AvatarURL, &creator.FullName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		if hasCreator {
			post.Creator = models.SomeCreator(creator)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

func (s *PostgresStore) GetPostLikes(ctx context.Context, postID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM posts WHERE id::text = $1`, fmt.Sprintf(likesColumn, "likes"))

	var likes []string
	err := s.pool.QueryRow(ctx, query, postID).Scan(&likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read likes of post %s: %w", postID, err)
	}
	return likes, nil
}

func (s *PostgresStore) UpdatePostLikes(ctx context.Context, postID string, likes []string) error {
	if likes == nil {
		likes = []string{}
	}

	tag, err := s.pool.Exec(ctx, `UPDATE posts SET likes = $1 WHERE id::text = $2`, likes, postID)
	if err != nil {
		return fmt.Errorf("failed to update likes of post %s: %w", postID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", postID, feed.ErrPostNotFound)
	}
	return nil
}

const commentColumns = `
	c.id::text, c.postid::text, c.creatorid::text, c.content, c.created_at, %s,
	pr.id IS NOT NULL, COALESCE(pr.username, ''), COALESCE(pr.avatar_url, ''), COALESCE(pr.full_name, '')
	FROM comments c
	LEFT JOIN profiles pr ON pr.id = c.creatorid
`

func (s *PostgresStore) ListComments(ctx context.Context, postID, before string, limit int) ([]models.Comment, error) {
	query := `SELECT ` + fmt.Sprintf(commentColumns, fmt.Sprintf(likesColumn, "c.likes")) + `
	WHERE c.postid::text = $1 AND ($2 = '' OR c.id::text < $2)
	ORDER BY c.created_at DESC
	LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, postID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments of post %s: %w", postID, err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanPGComment(rows)
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

func (s *PostgresStore) CountComments(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments WHERE postid::text = $1`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}
	return count, nil
}

// CreateComment inserts a comment and lets the database assign its id and time
func (s *PostgresStore) CreateComment(ctx context.Context, nc models.NewComment) (models.Comment, error) {
	if nc.Likes == nil {
		nc.Likes = []string{}
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO comments (postid, creatorid, content, likes) VALUES ($1, $2, $3, $4) RETURNING id::text`,
		nc.PostID, nc.CreatorID, nc.Content, nc.Likes,
	).Scan(&id)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to insert comment: %w", err)
	}

	query := `SELECT ` + fmt.Sprintf(commentColumns, fmt.Sprintf(likesColumn, "c.likes")) + `WHERE c.id::text = $1`
	return scanPGComment(s.pool.QueryRow(ctx, query, id))
}

func scanPGComment(row pgx.Row) (models.Comment, error) {
	var comment models.Comment
	var hasCreator bool
	var creator models.Creator

	err := row.Scan(
		&comment.ID, &comment.PostID, &comment.CreatorID, &comment.Content, &comment.CreatedAt, &comment.Likes,
		&hasCreator, &creator.Username, &creator.AvatarURL, &creator.FullName,
	)
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to scan comment: %w", err)
	}
	if hasCreator {
		comment.Creator = models.SomeCreator(creator)
	}
	return comment, nil
}
