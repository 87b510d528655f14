package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Bucket wraps an S3 bucket used for answer files and exam attachments.
type Bucket struct {
	client *s3.Client
	bucket string
	region string
	log    zerolog.Logger
}

// NewBucket loads the default AWS config and returns a Bucket handle.
func NewBucket(ctx context.Context, region, bucket string, log zerolog.Logger) (*Bucket, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Bucket{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		log:    log.With().Str("component", "s3_bucket").Str("bucket", bucket).Logger(),
	}, nil
}

// Upload stores content under key with the given media type and returns the
// object URL.
func (b *Bucket) Upload(ctx context.Context, key string, content []byte, mediaType string) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mediaType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	b.log.Debug().Str("key", key).Int("bytes", len(content)).Msg("Object uploaded")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, key), nil
}

// Download fetches an object's content by key.
func (b *Bucket) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
