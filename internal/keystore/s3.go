package keystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"crypto-wallet/internal/wallet"
)

// S3Store keeps encrypted account blobs in Amazon S3 (or compatible APIs).
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	key      []byte
}

// NewS3Store builds a Store over the given bucket. encryptionKey must be 32
// bytes (AES-256).
func NewS3Store(client *s3.Client, bucket, prefix string, encryptionKey []byte) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("keystore bucket is required")
	}
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("keystore encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		key:      encryptionKey,
	}, nil
}

func (s *S3Store) objectKey(userID string) string {
	return path.Join(s.prefix, userID+".account")
}

func (s *S3Store) Put(ctx context.Context, userID string, acct wallet.Account) error {
	blob, err := seal(acct, s.key)
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(userID)),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("upload account blob: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, userID string) (*wallet.Account, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(userID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account blob: %w", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read account blob: %w", err)
	}
	return open(blob, s.key)
}
