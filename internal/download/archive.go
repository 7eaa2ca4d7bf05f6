package download

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archive stores copies of downloaded documents in a bucket.
type S3Archive struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Archive creates an archive using the default AWS credential chain.
// When AWS_ENDPOINT_URL is set (LocalStack, MinIO) the client uses that
// endpoint with path-style addressing.
func NewS3Archive(ctx context.Context, bucket string, logger *slog.Logger) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(cfg)
	}

	return &S3Archive{client: client, bucket: bucket, logger: logger}, nil
}

// Put uploads body under key.
func (a *S3Archive) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug("archived document", "bucket", a.bucket, "key", key, "bytes", len(body))
	return nil
}

// ArchiveKey builds "<kind>/<scope>/<file>" where file is the last segment
// of the document URL.
func ArchiveKey(kind, scope, url string) string {
	file := path.Base(strings.SplitN(url, "?", 2)[0])
	return path.Join(kind, scope, file)
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
