package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/worldforge/core/errs"
)

// ObjectClient mirrors the subset of *s3.Client the adapter needs, so callers
// can pass either the real client or a mock in tests. Grounded on the
// teacher's RuntimeClient seam in features/model/bedrock/client.go.
type ObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures the S3-backed Blob adapter.
type S3Options struct {
	Client ObjectClient
	Bucket string
	// URLTTLSeconds controls presigned URL expiry when a Presigner is set;
	// when Presigner is nil, URL falls back to a plain virtual-hosted URL.
	URLTTLSeconds int64
	Presigner     Presigner
}

// Presigner mirrors *s3.PresignClient.PresignGetObject.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*smithyhttp.Request, error)
}

// S3Blob implements Blob on top of AWS S3, extending the teacher's
// aws-sdk-go-v2 family (used there for Bedrock model access) to object
// storage.
type S3Blob struct {
	opts S3Options
}

// NewS3Blob constructs an S3-backed Blob.
func NewS3Blob(opts S3Options) (*S3Blob, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("store: s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("store: bucket is required")
	}
	if opts.URLTTLSeconds <= 0 {
		opts.URLTTLSeconds = 900
	}
	return &S3Blob{opts: opts}, nil
}

func (b *S3Blob) Put(ctx context.Context, key string, data []byte, mime string) error {
	_, err := b.opts.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return errs.Wrap(errs.ProviderUnavailable, "s3 put object", err)
	}
	return nil
}

func (b *S3Blob) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.opts.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.Newf(errs.NotFound, "blob %s not found", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ProviderUnavailable, "s3 read object body", err)
	}
	return data, nil
}

func (b *S3Blob) Delete(ctx context.Context, key string) error {
	_, err := b.opts.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.Wrap(errs.ProviderUnavailable, "s3 delete object", err)
	}
	return nil
}

func (b *S3Blob) URL(ctx context.Context, key string) (string, error) {
	if b.opts.Presigner == nil {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", b.opts.Bucket, key), nil
	}
	req, err := b.opts.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = presignExpiry(b.opts.URLTTLSeconds)
	})
	if err != nil {
		return "", errs.Wrap(errs.ProviderUnavailable, "s3 presign url", err)
	}
	return req.URL, nil
}

func presignExpiry(ttlSeconds int64) time.Duration {
	return time.Duration(ttlSeconds) * time.Second
}

var _ Blob = (*S3Blob)(nil)
