package bucket

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"hotfolder/internal/store"
)

// Storage uploads garment photos to an S3-compatible bucket.
type Storage struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	CreateBucket bool
}

// NewStorage connects to the endpoint and checks the bucket. When CreateBucket is
// set a missing bucket is created, otherwise it is an error.
func NewStorage(ctx context.Context, config *Config) (*Storage, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client for %s: %w", config.Endpoint, err)
	}

	s := &Storage{
		client: client,
		bucket: config.Bucket,
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", config.Bucket, err)
	}

	if !exists {
		if !config.CreateBucket {
			return nil, fmt.Errorf("%w: %s", store.ErrBucketMissing, config.Bucket)
		}
		err = client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", config.Bucket, err)
		}
	}

	return s, nil
}

// Bucket returns the target bucket name.
func (s *Storage) Bucket() string { return s.bucket }

// UploadFile streams localPath into the bucket under objectName.
func (s *Storage) UploadFile(ctx context.Context, objectName, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", localPath, s.bucket, objectName, err)
	}
	return nil
}

var _ store.ObjectStore = (*Storage)(nil)
