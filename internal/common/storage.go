package common

import (
	"context"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AssetStore removes already-uploaded CDN assets by their public ids. Uploads
// and URL signing happen entirely outside this service; deletion after a blog
// mutation is the only lifecycle call the core makes, and it is best-effort.
type AssetStore interface {
	DeleteMany(ctx context.Context, publicIDs []string) error
}

type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	return &CloudinaryStore{cld: cld}, nil
}

func (s *CloudinaryStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	for _, id := range publicIDs {
		_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
		if err != nil {
			return err
		}
	}
	return nil
}
