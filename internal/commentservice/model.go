package commentservice

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

func newCommentModel(db *sql.DB) *CommentModel {
	return &CommentModel{db: db}
}

// findManyByBlogID returns one page of a blog's comments, newest first. The
// cursor is the created_at of the previous page's last row.
func (m *CommentModel) findManyByBlogID(ctx context.Context, blogID, pageSize int, cursor *time.Time) ([]Comment, error) {
	query := `
		SELECT id, content, blog_id, user_id, author_name, author_username, author_image, created_at, updated_at
		FROM comments
		WHERE blog_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := m.db.QueryContext(ctx, query, blogID, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		err := rows.Scan(&c.ID, &c.Content, &c.BlogID, &c.UserID, &c.Author.Name, &c.Author.Username, &c.Author.Image, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func (m *CommentModel) insert(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO comments (content, blog_id, user_id, author_name, author_username, author_image)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	args := []any{c.Content, c.BlogID, c.UserID, c.Author.Name, c.Author.Username, c.Author.Image}

	return m.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// delete removes a comment. Authorship-or-admin is enforced in the WHERE
// clause so there is no window between check and delete. Returns the blog id
// the comment belonged to.
func (m *CommentModel) delete(ctx context.Context, commentID, userID int, isAdmin bool) (int, error) {
	query := `
		DELETE FROM comments
		WHERE id = $1 AND (user_id = $2 OR $3)
		RETURNING blog_id`

	var blogID int
	err := m.db.QueryRowContext(ctx, query, commentID, userID, isAdmin).Scan(&blogID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return 0, ErrRecordNotFound
		default:
			return 0, err
		}
	}

	return blogID, nil
}
