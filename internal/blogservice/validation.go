package blogservice

import (
	"encoding/json"

	"github.com/metapresshq/metapress/internal/common"
)

const maxBlogImages = 10

func validateTitle(v *common.Validator, title string) {
	v.Check(title != "", "title", "must be provided")
	v.Check(v.CheckStringLength(title, 3, 150), "title", "must be between 3 and 150 characters long")
}

func validateContent(v *common.Validator, content json.RawMessage) {
	v.Check(len(content) > 0, "content", "must be provided")
	v.Check(json.Valid(content), "content", "must be a valid document")
}

func validateImages(v *common.Validator, images []ImageInput) {
	v.Check(len(images) <= maxBlogImages, "images", "must not contain more than 10 images")
	for _, img := range images {
		v.Check(v.CheckURL(img.URL), "images", "must contain valid urls")
		v.Check(img.PublicID != "", "images", "must contain storage ids")
	}
}
