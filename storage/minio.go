package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"multitrack/config"
	"multitrack/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/crypto/blake2b"
)

const blobPrefix = "blobs/"

// ContentID derives the content identifier of data: the hex BLAKE2b-256
// digest. Equal bytes always map to the same id.
func ContentID(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidContentID reports whether cid looks like a ContentID result.
func ValidContentID(cid string) bool {
	if len(cid) != 64 {
		return false
	}
	_, err := hex.DecodeString(cid)
	return err == nil
}

// MinioStore is a content-addressed blob store on a MinIO bucket. Objects
// live under blobs/<cid>.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioStore connects to MinIO and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinioStore{client: client, bucket: cfg.MinioBucket, region: cfg.MinioRegion}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("[BlobStore] MinIO 连接成功", logger.String("endpoint", cfg.MinioEndpoint), logger.String("bucket", cfg.MinioBucket))
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在，不存在则创建
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	logger.Info("[BlobStore] 创建存储桶", logger.String("bucket", s.bucket))
	return nil
}

func objectName(cid string) string {
	return blobPrefix + cid
}

// Store writes data and returns its content id. Content already present is
// not uploaded again.
func (s *MinioStore) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	cid := ContentID(data)
	name := objectName(cid)

	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err == nil {
		logger.Debug("[BlobStore] 内容已存在，跳过上传", logger.String("cid", cid))
		return cid, nil
	} else if !IsNotFound(err) {
		return "", fmt.Errorf("stat %s: %w", cid, err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		logger.Error("[BlobStore] 上传失败", logger.String("cid", cid), logger.ErrorField(err))
		return "", fmt.Errorf("upload %s: %w", cid, err)
	}
	logger.Info("[BlobStore] 上传成功", logger.String("cid", cid), logger.String("mime", mimeType), logger.Int("bytes", len(data)))
	return cid, nil
}

// Blob is fetched content with its declared type.
type Blob struct {
	Data     []byte
	MimeType string
}

// Fetch reads the content stored under cid.
func (s *MinioStore) Fetch(ctx context.Context, cid string) (*Blob, error) {
	if !ValidContentID(cid) {
		return nil, fmt.Errorf("invalid content id %q", cid)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(cid), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", cid, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cid, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cid, err)
	}
	return &Blob{Data: data, MimeType: info.ContentType}, nil
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.Code == "NoSuchKey"
}
