package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/k11v/genbuild/internal/build/operation"
	"github.com/k11v/genbuild/internal/s3util"
)

var _ operation.Storage = (*Storage)(nil)

// ErrObjectTooLarge is returned by Put when the storage rejects the object size.
var ErrObjectTooLarge = errors.New("object too large")

type Storage struct {
	client *s3.Client // required

	// uploadPartSize should be greater than or equal 5MB.
	// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
	uploadPartSize int
}

// NewStorage creates a new Storage using the provided connection string.
// It panics if the connection string is not a valid URL.
func NewStorage(connectionString string) *Storage {
	return &Storage{
		client:         s3util.NewClient(connectionString),
		uploadPartSize: 10 * 1024 * 1024, // 10MB
	}
}

// Exists implements operation.Storage.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s3util.BucketName,
		Key:    &key,
	})
	if isNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

// Open implements operation.Storage.
// The caller must close the returned reader.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s3util.BucketName,
		Key:    &key,
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("open: %w", operation.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return output.Body, nil
}

// Put implements operation.Storage.
// It returns after the object became visible.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader) error {
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = int64(s.uploadPartSize)
	})

	contentType := "application/zip"
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &s3util.BucketName,
		Key:         &key,
		Body:        r,
		ContentType: &contentType,
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "EntityTooLarge" {
			err = errors.Join(ErrObjectTooLarge, err)
		}
		return fmt.Errorf("put: %w", err)
	}

	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: &s3util.BucketName,
		Key:    &key,
	}, time.Minute)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	return nil
}

// isNotFound reports whether err means that the object doesn't exist.
// HeadObject has no body, so it reports a bare NotFound code instead of NoSuchKey.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if notFoundErr := (*types.NotFound)(nil); errors.As(err, &notFoundErr) {
		return true
	}
	if noSuchKeyErr := (*types.NoSuchKey)(nil); errors.As(err, &noSuchKeyErr) {
		return true
	}
	if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
