package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
)

// S3 writes backup objects to an S3 bucket. PutObject is atomic on the
// service side: a failed upload never leaves a readable partial object.
type S3 struct {
	cfg    *config.Destination
	client *s3.Client
}

func NewS3(cfg *config.Destination, creds Credentials) (*S3, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if creds.AWSAccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{cfg: cfg, client: client}, nil
}

func (d *S3) Name() string {
	return d.cfg.Name
}

func (d *S3) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.cfg.Bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return mapS3Error(err, "put "+key)
	}
	return nil
}

func (d *S3) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(err, "delete "+key)
	}
	return nil
}

// Check issues a zero-result list against the bucket, verifying both
// reachability and credentials.
func (d *S3) Check(ctx context.Context) error {
	_, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.cfg.Bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return mapS3Error(err, "check bucket "+d.cfg.Bucket)
	}
	return nil
}

// mapS3Error buckets AWS API errors into the engine's taxonomy.
func mapS3Error(err error, what string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "TokenRefreshRequired":
			return fmt.Errorf("%w: s3 %s: %v", backup.ErrAuthFailure, what, err)
		case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
			return fmt.Errorf("%w: s3 %s: %v", backup.ErrQuotaExceeded, what, err)
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: s3 %s: %v", backup.ErrNotFound, what, err)
		case "RequestTimeout", "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: s3 %s: %v", backup.ErrTransient, what, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: s3 %s: %v", backup.ErrTransient, what, err)
	}
	// network-level failures without an API error code are worth a retry
	return fmt.Errorf("%w: s3 %s: %v", backup.ErrTransient, what, err)
}
