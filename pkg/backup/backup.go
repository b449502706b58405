// Package backup uploads FileService-produced archives to S3 for
// off-box retention. It is optional: constructed only when a bucket
// is configured, and failures never block the local backup, which
// remains the contract FileService.BackupDirectory promises callers.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/internal/telemetry"
)

// Config selects the destination bucket and region for archive uploads.
type Config struct {
	S3Bucket string
	S3Region string
}

// Enabled reports whether a bucket has been configured.
func (c Config) Enabled() bool {
	return c.S3Bucket != ""
}

// Uploader uploads local backup archives to S3 under a
// year/month-partitioned key prefix.
type Uploader struct {
	client *s3.Client
	bucket string
	region string
}

// New constructs an Uploader from cfg, loading AWS credentials from
// the standard SDK chain (environment, shared config, instance role).
// Returns (nil, nil) when cfg.Enabled() is false so callers can treat
// a nil *Uploader as "backups stay local".
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
	}, nil
}

// Upload uploads the archive at localPath under
// backups/<year>/<month>/<basename>. Failure is logged and returned
// rather than panicking; FileService.BackupDirectory treats it as
// best-effort and does not fail the local backup because of it.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	if u == nil {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open backup archive: %w", err)
	}
	defer f.Close()

	now := time.Now()
	key := fmt.Sprintf("backups/%04d/%02d/%s", now.Year(), now.Month(), filepath.Base(localPath))

	ctx, span := telemetry.StartContentSpan(ctx, "write", key, telemetry.Bucket(u.bucket), telemetry.StorageKey(key), telemetry.Region(u.region))
	defer span.End()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "s3 backup upload failed", logger.Err(err))
		return fmt.Errorf("s3 put object: %w", err)
	}

	logger.InfoCtx(ctx, "backup archive uploaded to s3", "bucket", u.bucket, "key", key)
	return nil
}
