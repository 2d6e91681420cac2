// Package archive uploads the flat files of a run to S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bankcap/internal/logger"
)

// uploadTimeout bounds a single PutObject.
const uploadTimeout = 2 * time.Minute

// Settings locate the bucket and, optionally, static credentials.
// Without credentials the default AWS chain is used.
type Settings struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// PutObjectAPI is the part of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each file to s3://<bucket>/<prefix>/<run-id>/<basename>.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	log    *logger.Entry
}

// New builds an S3 client from settings.
func New(ctx context.Context, settings Settings) (*S3Archiver, error) {
	if settings.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(settings.Region)}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				settings.AccessKeyID,
				settings.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
		o.UsePathStyle = settings.PathStyle
	})
	return NewWithClient(client, settings.Bucket, settings.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.GetLogger().WithComponent("archive").WithFields(logger.Fields{"bucket": bucket}),
	}
}

// Key returns the object key for a file of runID.
func (a *S3Archiver) Key(runID, file string) string {
	return path.Join(a.prefix, runID, filepath.Base(file))
}

// Archive uploads paths in order and returns the written keys. It stops
// at the first failure.
func (a *S3Archiver) Archive(ctx context.Context, runID string, paths []string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return keys, fmt.Errorf("read %s: %w", p, err)
		}
		key := a.Key(runID, p)
		if err := a.upload(ctx, key, data, runID); err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		a.log.WithFields(logger.Fields{"key": key, "bytes": len(data)}).Info("file archived")
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *S3Archiver) upload(ctx context.Context, key string, data []byte, runID string) error {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"run-id": runID,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	_, err := a.client.PutObject(ctx, input)
	return err
}
