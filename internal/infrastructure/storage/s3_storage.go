// Package storage archives reconciliation reports to S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/stockcore/internal/domain/inventory"
	infraconfig "github.com/erp/stockcore/internal/infrastructure/config"
	"go.uber.org/zap"
)

// S3API is the subset of *s3.Client the archiver uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ReportArchiver writes reconciliation reports as JSON objects keyed by
// the report's generation date
type S3ReportArchiver struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ReportArchiverOption configures an S3ReportArchiver
type S3ReportArchiverOption func(*S3ReportArchiver)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ReportArchiverOption {
	return func(a *S3ReportArchiver) {
		a.logger = logger
	}
}

// WithClient replaces the S3 client
func WithClient(client S3API) S3ReportArchiverOption {
	return func(a *S3ReportArchiver) {
		a.client = client
	}
}

// NewS3ReportArchiver creates an archiver for any S3-compatible backend
// (AWS S3, MinIO, RustFS)
func NewS3ReportArchiver(cfg *infraconfig.StorageConfig, opts ...S3ReportArchiverOption) (*S3ReportArchiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("storage access key and secret key are required")
	}

	a := &S3ReportArchiver{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.client == nil {
		client, err := newS3Client(cfg)
		if err != nil {
			return nil, err
		}
		a.client = client
	}
	return a, nil
}

func newS3Client(cfg *infraconfig.StorageConfig) (*s3.Client, error) {
	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// EnsureBucket creates the bucket if it does not exist
func (a *S3ReportArchiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	a.logger.Info("Creating report bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive uploads the report and returns its s3:// location
func (a *S3ReportArchiver) Archive(ctx context.Context, report *inventory.ReconciliationReport) (string, error) {
	if report == nil {
		return "", errors.New("report is required")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := a.objectKey(report.GeneratedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"products-checked": strconv.Itoa(report.ProductsChecked),
			"discrepancies":    strconv.Itoa(len(report.Discrepancies)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", key, err)
	}

	location := "s3://" + a.bucket + "/" + key
	a.logger.Debug("Report archived", zap.String("location", location), zap.Int("bytes", len(body)))
	return location, nil
}

// objectKey lays reports out as <prefix>/YYYY/MM/DD/reconciliation-<time>.json
func (a *S3ReportArchiver) objectKey(generatedAt time.Time) string {
	t := generatedAt.UTC()
	name := "reconciliation-" + t.Format("20060102T150405.000000000Z") + ".json"
	return path.Join(a.prefix, t.Format("2006/01/02"), name)
}
