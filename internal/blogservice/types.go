package blogservice

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/metapresshq/metapress/internal/common"
)

// Author is the writer snapshot denormalized onto blogs and comments at
// creation time, so reads never join against users.
type Author struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

type BlogImage struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Order    int    `json:"order"`
}

type Blog struct {
	ID         int             `json:"id"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	CoverImage string          `json:"cover_image"`
	Category   string          `json:"category"`
	Author     Author          `json:"author"`
	UserID     int             `json:"user_id"`
	Images     []BlogImage     `json:"images,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BlogView is a blog record merged with the caller-relative like state. The
// like fields are always fetched fresh and never stored in the cached record,
// because likes mutate far more often than blog content.
type BlogView struct {
	Blog
	Likes   int64 `json:"likes"`
	IsLiked bool  `json:"is_liked"`
}

// LikedBlog carries the like timestamp used as the pagination cursor when
// listing a user's liked blogs.
type LikedBlog struct {
	Blog
	LikedAt time.Time `json:"liked_at"`
}

type BlogModel struct {
	db *sql.DB
}

type BlogService struct {
	m      *BlogModel
	c      *common.Cache
	assets common.AssetStore
	codec  *common.IDCodec
	logger *slog.Logger
}

func NewBlogService(db *sql.DB, c *common.Cache, assets common.AssetStore, codec *common.IDCodec, logger *slog.Logger) *BlogService {
	return &BlogService{
		m:      newBlogModel(db),
		c:      c,
		assets: assets,
		codec:  codec,
		logger: logger,
	}
}
