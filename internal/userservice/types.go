package userservice

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/common"
)

type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is a user record augmented with caller-relative flags. The flags
// are computed per request and never cached.
type Profile struct {
	User
	IsSelf      bool `json:"is_self"`
	IsSelfAdmin bool `json:"is_self_admin"`
}

type UserModel struct {
	db *sql.DB
}

type UserService struct {
	m      *UserModel
	c      *common.Cache
	codec  *common.IDCodec
	blogs  *blogservice.BlogService
	logger *slog.Logger
}

func NewUserService(db *sql.DB, c *common.Cache, codec *common.IDCodec, blogs *blogservice.BlogService, logger *slog.Logger) *UserService {
	return &UserService{
		m:      newUserModel(db),
		c:      c,
		codec:  codec,
		blogs:  blogs,
		logger: logger,
	}
}
