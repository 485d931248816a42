// Package blob provides the blob tier: full-record payloads and export
// bundles stored in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"io/ioutil"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the blob tier contract used by the engine.
type Storage interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error

	// PutWithURL stores the object and returns a time-bounded retrieval
	// URL for it.
	PutWithURL(ctx context.Context, bucket, key string, body []byte, ttl time.Duration) (string, error)
}

// S3 implements Storage against the AWS S3 API.
type S3 struct {
	client s3iface.S3API
	logger logrus.FieldLogger
}

var _ Storage = (*S3)(nil)

func NewS3(logger logrus.FieldLogger, client s3iface.S3API) *S3 {
	return &S3{client: client, logger: logger}
}

func (s *S3) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, "putting s3://%s/%s", bucket, key)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting s3://%s/%s", bucket, key)
	}
	defer output.Body.Close()
	body, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading s3://%s/%s", bucket, key)
	}
	return body, nil
}

// Delete removes the object. A missing object is a success, matching the
// best-effort dual-tier delete contract.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			s.logger.WithFields(logrus.Fields{"bucket": bucket, "key": key}).Warning("Object already absent")
			return nil
		}
		return errors.Wrapf(err, "deleting s3://%s/%s", bucket, key)
	}
	return nil
}

func (s *S3) PutWithURL(ctx context.Context, bucket, key string, body []byte, ttl time.Duration) (string, error) {
	if err := s.Put(ctx, bucket, key, body); err != nil {
		return "", err
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", errors.Wrapf(err, "presigning s3://%s/%s", bucket, key)
	}
	return url, nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}
