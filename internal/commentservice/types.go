package commentservice

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/common"
)

type Comment struct {
	ID        int                `json:"id"`
	Content   string             `json:"content"`
	BlogID    int                `json:"blog_id"`
	UserID    int                `json:"user_id"`
	Author    blogservice.Author `json:"author"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type CommentModel struct {
	db *sql.DB
}

type CommentService struct {
	m      *CommentModel
	c      *common.Cache
	codec  *common.IDCodec
	logger *slog.Logger
}

func NewCommentService(db *sql.DB, c *common.Cache, codec *common.IDCodec, logger *slog.Logger) *CommentService {
	return &CommentService{
		m:      newCommentModel(db),
		c:      c,
		codec:  codec,
		logger: logger,
	}
}
