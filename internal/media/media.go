// Package media turns opaque chapter media keys into URLs.
package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Linker resolves a stored media key to a URL a client can fetch.
type Linker interface {
	URL(ctx context.Context, key string) (string, error)
}

// MinioConfig configures presigned links against an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	TTL       time.Duration
}

// MinioLinker issues presigned GET URLs. Setting Region avoids a bucket
// location round trip on every presign.
type MinioLinker struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewMinioLinker(cfg MinioConfig) (*MinioLinker, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinioLinker{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

func (l *MinioLinker) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	u, err := l.client.PresignedGetObject(ctx, l.bucket, strings.TrimPrefix(key, "/"), l.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// StaticLinker joins keys onto a public base URL. With an empty base it
// returns keys unchanged.
type StaticLinker struct {
	BaseURL string
}

func (l StaticLinker) URL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	base := strings.TrimSpace(l.BaseURL)
	if base == "" {
		return key, nil
	}
	joined, err := url.JoinPath(base, key)
	if err != nil {
		return "", fmt.Errorf("join media url: %w", err)
	}
	return joined, nil
}
