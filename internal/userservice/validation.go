package userservice

import (
	"regexp"

	"github.com/metapresshq/metapress/internal/common"
)

var UsernameRX = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateUsername(v *common.Validator, username string) {
	v.Check(username != "", "username", "must be provided")
	v.Check(v.CheckStringLength(username, 2, 50), "username", "must be between 2 and 50 characters long")
	v.Check(v.CheckMatches(username, UsernameRX), "username", "must only contain letters, numbers, hyphens, and underscores")
}
