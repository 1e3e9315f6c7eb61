package filestore

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

// S3Store keeps files in an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

var _ core.FileStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, conf core.StorageConfig) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Region)}
	if conf.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading S3 config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := conf.PublicBaseURL
	if baseURL == "" {
		baseURL = "https://" + conf.Bucket + ".s3." + conf.Region + ".amazonaws.com"
	}
	return &S3Store{client: client, bucket: conf.Bucket, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return core.Unavailable(errors.Wrap(err, "uploading "+key))
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, core.Unavailable(errors.Wrap(err, "downloading "+key))
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return errors.Wrap(err, "deleting "+key)
}

func (s *S3Store) URL(key string) string {
	return s.baseURL + "/" + key
}

// New picks the store named by conf.Driver.
func New(ctx context.Context, conf core.StorageConfig) (core.FileStore, error) {
	switch conf.Driver {
	case "s3":
		return NewS3Store(ctx, conf)
	case "", "memory":
		return NewMemoryStore(conf.PublicBaseURL), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Driver)
	}
}
