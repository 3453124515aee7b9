package storage_test

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tinywideclouds/go-push-relay/internal/storage"
)

func TestObjectName(t *testing.T) {
	now := time.Unix(1700000000, 0)

	name := storage.ObjectName(storage.PrefixDecrypted, storage.ExtText, now)
	assert.Regexp(t, regexp.MustCompile(`^decrypted_1700000000_[0-9a-f-]{36}\.txt$`), name)

	t.Run("Unique within the same second", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			n := storage.ObjectName(storage.PrefixUpload, "png", now)
			_, dup := seen[n]
			assert.False(t, dup, fmt.Sprintf("duplicate name %s", n))
			seen[n] = struct{}{}
		}
	})
}

func TestExtensionFor(t *testing.T) {
	testCases := map[string]string{
		"video/mp4":                 "mp4",
		"image/jpeg":                "jpg",
		"image/png":                 "png",
		"IMAGE/PNG":                 "png",
		"image/jpeg; charset=utf-8": "jpg",
		"application/octet-stream":  "mp4",
		"":                          "mp4",
		"garbage;;;":                "mp4",
	}
	for contentType, want := range testCases {
		assert.Equal(t, want, storage.ExtensionFor(contentType), contentType)
	}
}
