package cache

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig locates the bucket completed downloads are copied to.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchiver stores completed downloads as <videoID>.mp4 objects.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects and creates the bucket when missing.
func NewMinioArchiver(ctx context.Context, cfg MinioConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(videoID string) string { return videoID + ".mp4" }

func (a *MinioArchiver) Archive(ctx context.Context, videoID, path string) error {
	_, err := a.client.FPutObject(ctx, a.bucket, objectKey(videoID), path, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", videoID, err)
	}
	return nil
}

func (a *MinioArchiver) Remove(ctx context.Context, videoID string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, objectKey(videoID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", videoID, err)
	}
	return nil
}
