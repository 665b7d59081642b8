package writer

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "congressflow/config"
	"congressflow/logger"
)

// Uploader mirrors finished output files to S3 so downstream consumers
// can pick them up without touching the ingest host.
type Uploader struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

func NewUploader(ctx context.Context, cfg *appconfig.Config) (*Uploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_uploader").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	return &Uploader{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsConfig),
		log:      log,
	}, nil
}

// UploadDir walks root and uploads every CSV under it. Objects are keyed
// by the directory's base name plus the relative path, under the
// configured prefix, so sibling output directories never collide.
func (u *Uploader) UploadDir(ctx context.Context, root string) error {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"operation": "upload_dir",
		"root":      root,
		"bucket":    u.config.Storage.S3.Bucket,
	})

	var uploaded int
	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".csv") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.Join(filepath.Base(root), rel)
		if err := u.uploadFile(ctx, path, u.objectKey(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{"files": uploaded}).Info("output uploaded to S3")
	return nil
}

func (u *Uploader) objectKey(rel string) string {
	key := filepath.ToSlash(rel)
	if prefix := strings.Trim(u.config.Storage.S3.Prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func (u *Uploader) uploadFile(ctx context.Context, path, key string) error {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"operation": "upload_file",
		"s3_key":    key,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	}

	if _, err := u.s3Client.PutObject(ctx, input); err != nil {
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to upload to S3")
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.config.Storage.S3.Bucket, err)
	}

	logger.IncrementS3Upload(int64(len(data)))
	log.WithFields(logger.Fields{"file_size": len(data)}).Debug("uploaded to S3")
	return nil
}
