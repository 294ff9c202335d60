// utils/report_archive.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReportArchiveOptions locate an S3-compatible bucket (AWS, R2, MinIO).
type ReportArchiveOptions struct {
	Bucket          string
	Endpoint        string // empty means AWS
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

// ReportArchive uploads JSON challenge reports to object storage.
type ReportArchive struct {
	client *s3.Client
	bucket string
}

func NewReportArchive(ctx context.Context, opts ReportArchiveOptions) (*ReportArchive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("report bucket not set")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.AccessKeySecret, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load report storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			// R2 and MinIO reject the default trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return &ReportArchive{client: client, bucket: opts.Bucket}, nil
}

// PutReport stores body under key as application/json.
func (a *ReportArchive) PutReport(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report %s: %w", key, err)
	}
	log.Printf("[Archive] 📦 Uploaded %s (%d bytes)", key, len(body))
	return nil
}
