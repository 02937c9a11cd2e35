package common

import (
	"errors"

	hashids "github.com/speps/go-hashids/v2"
)

var ErrInvalidID = errors.New("invalid id")

// IDCodec obfuscates integer row ids before they leave the core. Handlers
// decode public ids at the boundary and encode row ids on the way out; cache
// keys and SQL always use the raw integer.
type IDCodec struct {
	h *hashids.HashID
}

func NewIDCodec(salt string) (*IDCodec, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = 8

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, err
	}

	return &IDCodec{h: h}, nil
}

func (c *IDCodec) Encode(id int) string {
	// EncodeInt64 only fails for negative input, which row ids never are
	encoded, err := c.h.EncodeInt64([]int64{int64(id)})
	if err != nil {
		return ""
	}
	return encoded
}

func (c *IDCodec) Decode(publicID string) (int, error) {
	if publicID == "" {
		return 0, ErrInvalidID
	}

	ids, err := c.h.DecodeInt64WithError(publicID)
	if err != nil || len(ids) != 1 || ids[0] <= 0 {
		return 0, ErrInvalidID
	}
	return int(ids[0]), nil
}
