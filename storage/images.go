// Package storage uploads product images to an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"storefront-svc/config"
)

// ObjectPutter is the subset of *minio.Client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type ImageStore struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	logger    *zap.Logger
	now       func() time.Time
}

// InitImageStore connects to the object store and makes sure the bucket
// exists.
func InitImageStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*ImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Created storage bucket", zap.String("bucket", cfg.Bucket))
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	logger.Info("Connected to object storage", zap.String("endpoint", cfg.Endpoint))
	return NewImageStore(client, cfg.Bucket, publicURL, logger), nil
}

func NewImageStore(client ObjectPutter, bucket, publicURL string, logger *zap.Logger) *ImageStore {
	return &ImageStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// Upload stores the image and returns the URL to save on the product.
func (s *ImageStore) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	name := ObjectName(s.now(), filename)
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Info("Product image uploaded", zap.String("object", name), zap.Int64("size", size))
	return s.PublicURL(name), nil
}

// Remove deletes an uploaded image given the URL returned by Upload. URLs
// outside this bucket are ignored.
func (s *ImageStore) Remove(ctx context.Context, imageURL string) error {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(imageURL, prefix) {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, strings.TrimPrefix(imageURL, prefix), minio.RemoveObjectOptions{})
}

func (s *ImageStore) PublicURL(object string) string {
	return s.publicURL + "/" + object
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds "<unix-millis>-<sanitized base name>".
func ObjectName(at time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-.")
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%d-%s", at.UnixMilli(), base)
}
