package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats summarises the stored blobs.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	ByType       map[string]int64
}

// ObjectInfo describes one stored blob.
type ObjectInfo struct {
	ContentID    string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListBlobs lists blobs whose content id starts with prefix and gathers
// bucket statistics on the way.
func (s *MinioStore) ListBlobs(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{ByType: map[string]int64{}}
	var objects []ObjectInfo

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       blobPrefix + prefix,
		Recursive:    true,
		WithMetadata: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("list blobs: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		contentType := object.ContentType
		if contentType == "" {
			contentType = object.UserMetadata["content-type"]
		}
		stats.ByType[contentType]++

		objects = append(objects, ObjectInfo{
			ContentID:    strings.TrimPrefix(object.Key, blobPrefix),
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  contentType,
		})
	}
	return objects, stats, nil
}
