package clearingstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/cardledger/cardledger/config"
)

// Store receives finished clearing extracts. Writes are idempotent per key.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
}

// New picks the S3 store when a bucket is configured and falls back to the
// local directory otherwise.
func New() (Store, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if conf.Clearing.S3BucketName != "" {
		return newS3Store(conf)
	}
	return &LocalStore{Dir: conf.Clearing.Dir}, nil
}

// LocalStore writes extracts to a directory on disk.
type LocalStore struct {
	Dir string
}

func (l *LocalStore) Put(_ context.Context, key string, body []byte) error {
	if err := os.MkdirAll(l.Dir, os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.Dir, key), body, 0o644)
}

// S3Store uploads extracts to the configured bucket.
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
}

func newS3Store(conf *config.Configuration) (*S3Store, error) {
	awsConf := &aws.Config{
		Region:      aws.String(conf.Clearing.S3Region),
		Credentials: credentials.NewStaticCredentials(conf.Clearing.AwsAccessKeyId, conf.Clearing.AwsSecretAccessKey, ""),
	}
	if conf.Clearing.S3Endpoint != "" {
		awsConf.Endpoint = aws.String(conf.Clearing.S3Endpoint)
		awsConf.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		bucket:   conf.Clearing.S3BucketName,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}
