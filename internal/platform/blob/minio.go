// Package blob stores menu images in an S3 compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the bucket connection.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	PublicURL       string
	// DefaultImage is never deleted from the bucket.
	DefaultImage string
}

// Store puts and removes objects and maps keys to public URLs.
type Store struct {
	client       *minio.Client
	bucket       string
	publicURL    string
	defaultImage string
	logger       *slog.Logger
}

// New builds a Store backed by minio-go.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("platform/blob: bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("platform/blob: new client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:       client,
		bucket:       cfg.Bucket,
		publicURL:    strings.TrimRight(cfg.PublicURL, "/"),
		defaultImage: cfg.DefaultImage,
		logger:       logger,
	}, nil
}

// Put uploads body under key and returns its public URL.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("platform/blob: key required")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("platform/blob: put %s: %w", key, err)
	}
	return s.URLFor(key), nil
}

// Delete removes the object stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("platform/blob: delete %s: %w", key, err)
	}
	return nil
}

// RemoveImage deletes the object a public URL points at. Empty URLs and the
// default image are ignored.
func (s *Store) RemoveImage(ctx context.Context, imageURL string) error {
	key := KeyFromURL(imageURL, s.defaultImage)
	if key == "" {
		return nil
	}
	if err := s.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("image removed", slog.String("key", key))
	return nil
}

// URLFor returns the public URL of key.
func (s *Store) URLFor(key string) string {
	return s.publicURL + "/" + key
}

// KeyFromURL extracts the object key (last path segment) of imageURL. It
// returns "" for empty input or for defaultImage.
func KeyFromURL(imageURL, defaultImage string) string {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" || imageURL == defaultImage {
		return ""
	}
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil && u.Path != "" {
		p = u.Path
	}
	key := path.Base(p)
	if key == "." || key == "/" {
		return ""
	}
	return key
}
