package blobstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/sony/gobreaker"

	"github.com/crawlfabric/crawlfabric/pkg/hashutil"
)

// s3API is the subset of *s3.Client S3Store needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store is the production Store backend. Bodies are gzip-compressed on
// write, and every call is routed through a circuit breaker so a degraded
// bucket degrades the health endpoint instead of blocking every worker on
// the same stall.
type S3Store struct {
	client  s3API
	bucket  string
	breaker *gobreaker.CircuitBreaker
}

// NewS3Store constructs an S3Store over bucket, using an existing
// *s3.Client.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "s3-" + bucket,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (PutResult, error) {
	compressed, err := gzipCompress(body)
	if err != nil {
		return PutResult{}, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseWriteFailed, Retryable: false}
	}
	version := hashutil.BLAKE3Hex(body)

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(compressed),
			ContentType:     aws.String(contentType),
			ContentEncoding: aws.String("gzip"),
			Metadata:        map[string]string{"content-version": version},
		})
	})
	if err != nil {
		return PutResult{}, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseWriteFailed, Retryable: true}
	}
	return PutResult{Version: version}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseNotFound, Retryable: false}
		}
		return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseUnavailable, Retryable: true}
	}
	out := result.(*s3.GetObjectOutput)
	defer out.Body.Close()

	var reader io.Reader = out.Body
	if out.ContentEncoding != nil && *out.ContentEncoding == "gzip" {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseReadFailed, Retryable: false}
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseReadFailed, Retryable: true}
	}
	return body, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (bool, error) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, &BlobError{Key: key, Message: err.Error(), Cause: ErrCauseUnavailable, Retryable: true}
}

func isNoSuchKey(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
