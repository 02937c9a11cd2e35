package blogservice

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUserForeignKey = errors.New("user_id does not exist")
)

func newBlogModel(db *sql.DB) *BlogModel {
	return &BlogModel{db: db}
}

// ForeignKeyError is a helper function to check if the error is a foreign key constraint error.
func ForeignKeyError(err error, name string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23503" && pqErr.Constraint == name {
			return true
		}
	}

	return false
}

const blogColumns = `id, title, content, cover_image, category, author_name, author_username, author_image, user_id, created_at, updated_at`

func scanBlog(row interface{ Scan(...any) error }) (*Blog, error) {
	var b Blog
	err := row.Scan(&b.ID, &b.Title, &b.Content, &b.CoverImage, &b.Category, &b.Author.Name, &b.Author.Username, &b.Author.Image, &b.UserID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *BlogModel) find(ctx context.Context, id int) (*Blog, error) {
	query := `
		SELECT ` + blogColumns + `
		FROM blogs
		WHERE id = $1`

	blog, err := scanBlog(m.db.QueryRowContext(ctx, query, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}

	images, err := m.findImages(ctx, blog.ID)
	if err != nil {
		return nil, err
	}
	blog.Images = images

	return blog, nil
}

func (m *BlogModel) findImages(ctx context.Context, blogID int) ([]BlogImage, error) {
	query := `
		SELECT id, url, public_id, ord
		FROM blog_images
		WHERE blog_id = $1
		ORDER BY ord ASC`

	rows, err := m.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []BlogImage
	for rows.Next() {
		var img BlogImage
		if err := rows.Scan(&img.ID, &img.URL, &img.PublicID, &img.Order); err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

// findMany returns blogs for the given ids, preserving the input order.
// Ids that do not resolve are silently dropped.
func (m *BlogModel) findMany(ctx context.Context, ids []int) ([]Blog, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + blogColumns + `
		FROM blogs
		WHERE id = ANY($1)`

	rows, err := m.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int]Blog, len(ids))
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		byID[blog.ID] = *blog
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blogs := make([]Blog, 0, len(byID))
	for _, id := range ids {
		if blog, ok := byID[id]; ok {
			blogs = append(blogs, blog)
		}
	}

	return blogs, nil
}

// findManyByUserID returns one page of a user's blogs in descending
// created_at order. The cursor is the created_at of the previous page's last
// row; nil means the newest page.
func (m *BlogModel) findManyByUserID(ctx context.Context, userID, pageSize int, cursor *time.Time) ([]Blog, error) {
	query := `
		SELECT ` + blogColumns + `
		FROM blogs
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := m.db.QueryContext(ctx, query, userID, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blogs []Blog
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, *blog)
	}

	return blogs, rows.Err()
}

// findManyLikedByUserID pages through the blogs a user liked, newest like
// first. The like timestamp doubles as the cursor.
func (m *BlogModel) findManyLikedByUserID(ctx context.Context, userID, pageSize int, cursor *time.Time) ([]LikedBlog, error) {
	query := `
		SELECT b.id, b.title, b.content, b.cover_image, b.category, b.author_name, b.author_username, b.author_image, b.user_id, b.created_at, b.updated_at, l.created_at
		FROM blogs b
		JOIN likes l ON l.blog_id = b.id
		WHERE l.user_id = $1 AND ($2::timestamptz IS NULL OR l.created_at < $2)
		ORDER BY l.created_at DESC
		LIMIT $3`

	rows, err := m.db.QueryContext(ctx, query, userID, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var liked []LikedBlog
	for rows.Next() {
		var lb LikedBlog
		err := rows.Scan(&lb.ID, &lb.Title, &lb.Content, &lb.CoverImage, &lb.Category, &lb.Author.Name, &lb.Author.Username, &lb.Author.Image, &lb.UserID, &lb.CreatedAt, &lb.UpdatedAt, &lb.LikedAt)
		if err != nil {
			return nil, err
		}
		liked = append(liked, lb)
	}

	return liked, rows.Err()
}

// findManyRandom samples blogs from the last two years, keeping the explore
// feed away from long-dead content.
func (m *BlogModel) findManyRandom(ctx context.Context, limit int) ([]Blog, error) {
	query := `
		SELECT ` + blogColumns + `
		FROM blogs
		WHERE created_at > NOW() - INTERVAL '2 years'
		ORDER BY random()
		LIMIT $1`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blogs []Blog
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, *blog)
	}

	return blogs, rows.Err()
}

// insert writes the blog row and its ordered image rows in one transaction.
func (m *BlogModel) insert(ctx context.Context, blog *Blog) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO blogs (title, content, cover_image, category, author_name, author_username, author_image, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	args := []any{blog.Title, []byte(blog.Content), blog.CoverImage, blog.Category, blog.Author.Name, blog.Author.Username, blog.Author.Image, blog.UserID}

	err = tx.QueryRowContext(ctx, query, args...).Scan(&blog.ID, &blog.CreatedAt, &blog.UpdatedAt)
	if err != nil {
		switch {
		case ForeignKeyError(err, "blogs_user_id_fkey"):
			return ErrUserForeignKey
		default:
			return err
		}
	}

	for i := range blog.Images {
		img := &blog.Images[i]
		img.Order = i

		err = tx.QueryRowContext(ctx, `
			INSERT INTO blog_images (blog_id, url, public_id, ord)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, blog.ID, img.URL, img.PublicID, img.Order).Scan(&img.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// update rewrites the blog row and reconciles its image set in one
// transaction: explicitly removed images are deleted (their public ids are
// returned for CDN cleanup) and new images are appended after the current
// highest order, so order values are never reused.
func (m *BlogModel) update(ctx context.Context, blog *Blog, addImages []BlogImage, removeImageIDs []int) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		UPDATE blogs
		SET title = $1, content = $2, cover_image = $3, category = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, query, blog.Title, []byte(blog.Content), blog.CoverImage, blog.Category, blog.ID, blog.UserID).Scan(&blog.CreatedAt, &blog.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}

	var removedPublicIDs []string
	if len(removeImageIDs) > 0 {
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM blog_images
			WHERE blog_id = $1 AND id = ANY($2)
			RETURNING public_id`, blog.ID, pq.Array(removeImageIDs))
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var publicID string
			if err := rows.Scan(&publicID); err != nil {
				rows.Close()
				return nil, err
			}
			removedPublicIDs = append(removedPublicIDs, publicID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	if len(addImages) > 0 {
		var maxOrder int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(ord), -1)
			FROM blog_images
			WHERE blog_id = $1`, blog.ID).Scan(&maxOrder)
		if err != nil {
			return nil, err
		}

		for i, img := range addImages {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO blog_images (blog_id, url, public_id, ord)
				VALUES ($1, $2, $3, $4)`, blog.ID, img.URL, img.PublicID, maxOrder+1+i)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return removedPublicIDs, nil
}

// insertLike records the like authoritatively. The composite primary key
// makes a repeat like a no-op; the like timestamp comes back so the cache
// index scores the same instant the database stored.
func (m *BlogModel) insertLike(ctx context.Context, userID, blogID int) (time.Time, bool, error) {
	query := `
		INSERT INTO likes (user_id, blog_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, blog_id) DO NOTHING
		RETURNING created_at`

	var likedAt time.Time
	err := m.db.QueryRowContext(ctx, query, userID, blogID).Scan(&likedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	return likedAt, true, nil
}

func (m *BlogModel) deleteLike(ctx context.Context, userID, blogID int) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM likes
		WHERE user_id = $1 AND blog_id = $2`, userID, blogID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// delete removes the blog (comments and likes cascade at the DB level) and
// returns the public ids of its images so the caller can purge the CDN after
// the transaction commits. Ownership is enforced in the WHERE clause;
// admins bypass it.
func (m *BlogModel) delete(ctx context.Context, blogID, userID int, isAdmin bool) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT public_id
		FROM blog_images
		WHERE blog_id = $1`, blogID)
	if err != nil {
		return nil, err
	}

	var publicIDs []string
	for rows.Next() {
		var publicID string
		if err := rows.Scan(&publicID); err != nil {
			rows.Close()
			return nil, err
		}
		publicIDs = append(publicIDs, publicID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM blogs
		WHERE id = $1 AND (user_id = $2 OR $3)`, blogID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrRecordNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return publicIDs, nil
}
