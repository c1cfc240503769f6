package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultS3Key is the object key used when S3Config.Key is empty.
const DefaultS3Key = "cmevents/events.jsonl"

const jsonlContentType = "application/x-ndjson"

// S3Config locates the archive object in an S3-compatible bucket.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)
}

// S3Destination writes the JSONL export to a single object, replacing it on
// each sync.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination loads the default AWS credential chain and returns a
// destination for cfg.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultS3Key
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Write uploads data as the configured object.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(jsonlContentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put object s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return nil
}

func (d *S3Destination) String() string {
	return "s3://" + d.bucket + "/" + d.key
}
