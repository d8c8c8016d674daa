// Package media stores post images in an S3 compatible bucket.
package media

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"blogfeed/config"
)

const keyPrefix = "posts/"

// Storage puts an object and returns the URL it can be fetched from.
type Storage interface {
	Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type Minio struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinio(cfg config.Minio) (*Minio, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}
	return &Minio{client: client, bucket: cfg.Bucket, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
}

func (m *Minio) Put(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	name := ObjectName(filename)
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return m.publicURL + "/" + name, nil
}

// ObjectName returns a fresh key for an uploaded file, keeping its extension.
func ObjectName(filename string) string {
	return keyPrefix + uuid.New().String() + strings.ToLower(filepath.Ext(filename))
}

// IsImage reports whether contentType names an image type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
