// Package s3store backs the object store port with an S3-compatible
// service through the MinIO client.
package s3store

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/clipwright/clipwright/internal/ports"
)

type Store struct {
	client    *minio.Client
	endpoint  string
	publicURL string
	secure    bool
}

// New builds a client for the given endpoint. publicURL, when set,
// overrides the endpoint in returned object URLs (CDN or proxy front).
func New(endpoint, accessKey, secretKey, publicURL string, secure bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client %s: %w", endpoint, err)
	}
	return &Store{client: client, endpoint: endpoint, publicURL: publicURL, secure: secure}, nil
}

// Upload stores a local file and returns its public URL.
func (s *Store) Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error) {
	_, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return s.objectURL(bucket, key), nil
}

// Download fetches an object to a local path. A missing key maps to
// ports.ErrObjectNotFound so callers can tell absence from transport
// failure.
func (s *Store) Download(ctx context.Context, bucket, key, localPath string) error {
	err := s.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return fmt.Errorf("download %s/%s: %w", bucket, key, ports.ErrObjectNotFound)
		}
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) objectURL(bucket, key string) string {
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/") + "/" + bucket + "/" + key
	}
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, bucket, key)
}
