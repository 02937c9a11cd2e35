package commentservice

import (
	"time"

	"github.com/metapresshq/metapress/internal/common"
)

func validateContent(v *common.Validator, content string) {
	v.Check(content != "", "content", "must be provided")
	v.Check(v.CheckStringLength(content, 1, 2000), "content", "must not be longer than 2000 characters")
}

func cursorTime(cursor *int64) *time.Time {
	if cursor == nil {
		return nil
	}
	t := time.UnixMilli(*cursor)
	return &t
}
