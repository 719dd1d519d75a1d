// Package storage fetches uploaded résumés from Cloudflare R2.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type R2Config struct {
	AccountID string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Configured reports whether every field needed to reach the bucket is set.
func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func (c R2Config) Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// R2 downloads objects from a single bucket.
type R2 struct {
	client     objectGetter
	bucket     string
	attempts   uint64
	newBackOff func() backoff.BackOff
}

func NewR2(ctx context.Context, cfg R2Config) (*R2, error) {
	if !cfg.Configured() {
		return nil, errors.New("r2: incomplete configuration")
	}
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint())
	})
	return newR2(client, cfg.Bucket), nil
}

func newR2(client objectGetter, bucket string) *R2 {
	return &R2{
		client:     client,
		bucket:     bucket,
		attempts:   3,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Fetch downloads key, retrying transient failures.
func (r *R2) Fetch(ctx context.Context, key string) ([]byte, error) {
	op := func() ([]byte, error) {
		data, err := r.download(ctx, key)
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.attempts-1), ctx)
	data, err := backoff.RetryWithData(op, b)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", key)
	}
	return data, nil
}

func (r *R2) download(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, errors.Wrap(err, "read object body")
	}
	return buf.Bytes(), nil
}
