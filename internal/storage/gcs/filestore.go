// Package gcs implements push.FileStore on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// FileStore writes uploads as objects in one bucket, under an optional
// prefix.
type FileStore struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func NewFileStore(client *storage.Client, bucket, prefix string, logger *slog.Logger) (*FileStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &FileStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "GCSFileStore", "bucket", bucket),
	}, nil
}

// Save uploads data as <prefix>/<name> and returns its gs:// URI. Existing
// objects are never overwritten.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	objectName := path.Join(s.prefix, name)
	obj := s.client.Bucket(s.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("object %s already exists: %w", objectName, err)
		}
		return "", fmt.Errorf("failed to finalize object %s: %w", objectName, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.bucket, objectName)
	s.logger.Debug("Object written", "uri", uri, "bytes", len(data))
	return uri, nil
}
