package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/bwise1/safestreet/config"
	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"
)

const serviceName = "storage"

// Cloudinary stores report images under a single folder, the bucket.
type Cloudinary struct {
	CLD    *cloudinary.Cloudinary
	Folder string
}

func NewCloudinary(cfg *config.Config) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, errors.Wrap(err, "initialize cloudinary")
	}
	cld.Config.URL.Secure = true

	return &Cloudinary{CLD: cld, Folder: cfg.ImageBucket}, nil
}

func (c *Cloudinary) publicID(objectID string) string {
	return path.Join(c.Folder, objectID)
}

// uploadParams stores the object under the same public id the delete and
// URL builders resolve.
func (c *Cloudinary) uploadParams(objectID string) uploader.UploadParams {
	return uploader.UploadParams{
		PublicID:     c.publicID(objectID),
		ResourceType: "image",
	}
}

// CreateObject uploads data under objectID and returns the id to reference
// it by.
func (c *Cloudinary) CreateObject(ctx context.Context, objectID string, data []byte) (string, error) {
	resp, err := c.CLD.Upload.Upload(ctx, bytes.NewReader(data), c.uploadParams(objectID))
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return "", errors.Wrapf(err, "upload object %s", objectID)
	}
	if resp.Error.Message != "" {
		metrics.RecordExternalCall(serviceName, false)
		return "", fmt.Errorf("upload object %s: %s", objectID, resp.Error.Message)
	}

	metrics.RecordExternalCall(serviceName, true)
	return objectID, nil
}

func (c *Cloudinary) DeleteObject(ctx context.Context, objectID string) error {
	resp, err := c.CLD.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: c.publicID(objectID)})
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return errors.Wrapf(err, "delete object %s", objectID)
	}
	if resp.Error.Message != "" {
		metrics.RecordExternalCall(serviceName, false)
		return fmt.Errorf("delete object %s: %s", objectID, resp.Error.Message)
	}

	metrics.RecordExternalCall(serviceName, true)
	return nil
}

// PreviewURL returns a cropped thumbnail: top gravity, quality 80, rounded
// corners, JPEG output.
func (c *Cloudinary) PreviewURL(objectID string, width, height int) (string, error) {
	img, err := c.CLD.Image(c.publicID(objectID))
	if err != nil {
		return "", errors.Wrapf(err, "preview url for %s", objectID)
	}
	img.Transformation = fmt.Sprintf("c_fill,g_north,h_%d,w_%d,q_80,r_8/f_jpg", height, width)
	return img.String()
}

func (c *Cloudinary) ViewURL(objectID string) (string, error) {
	img, err := c.CLD.Image(c.publicID(objectID))
	if err != nil {
		return "", errors.Wrapf(err, "view url for %s", objectID)
	}
	return img.String()
}
