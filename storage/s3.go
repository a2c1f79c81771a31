package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

// S3Config configures an S3 or S3-compatible diploma archive bucket.
// Credentials are optional: without them the backend is read-only against a
// public bucket, which is enough for verifiers that only fetch documents.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func (c S3Config) uri() string {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", c.Bucket, c.Prefix, c.Region)
	if c.AccessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", c.AccessKey, c.Bucket, c.Prefix, c.Region)
	}
	if c.Endpoint != "" {
		uri += "&endpoint=" + c.Endpoint
	}
	return uri
}

// S3Backend archives encrypted diploma documents in an S3 bucket. Issuing
// institutions hold write credentials; verifiers read anonymously.
type S3Backend struct {
	reader   *s3.S3
	writer   *s3.S3
	cfg      S3Config
	writable bool
	log      *slog.Logger
}

// NewS3Backend connects to the configured bucket. An anonymous session is
// always created for reads; a credentialed one is added when keys are set.
func NewS3Backend(cfg S3Config, log *slog.Logger) (*S3Backend, error) {
	awsCfg := aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	readSess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	reader := s3.New(readSess)

	writer := reader
	writable := cfg.AccessKey != "" && cfg.SecretKey != ""
	if writable {
		writeCfg := awsCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}
		writer = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials configured, document uploads will fail unless the bucket is public-writable", "bucket", cfg.Bucket)
	}

	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	return &S3Backend{reader: reader, writer: writer, cfg: cfg, writable: writable, log: log}, nil
}

// Fetch retrieves a document or metadata object by content identifier.
func (b *S3Backend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	key := b.objectKey(id, contentType)

	result, err := b.reader.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to get object from S3", "bucket", b.cfg.Bucket, "key", key, "err", err)
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched content from S3", "bucket", b.cfg.Bucket, "key", key, "size", len(data))
	return data, nil
}

// Store uploads data under its SHA-256 content identifier. Objects get a
// public-read ACL so anyone holding a certificate can fetch the document it
// commits to.
func (b *S3Backend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	key := b.objectKey(id, contentType)

	_, err := b.writer.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		ACL:    aws.String("public-read"),
	})
	if err != nil {
		if !b.writable {
			return id, fmt.Errorf("failed to upload object to S3 (no write credentials configured): %w", err)
		}
		return id, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored content in S3", "bucket", b.cfg.Bucket, "key", key)
	return id, nil
}

// Available heads the bucket to check reachability.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.reader.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.cfg.Bucket),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable", "bucket", b.cfg.Bucket, "err", err)
		return false
	}
	return true
}

func (b *S3Backend) Name() string {
	return "s3-" + b.cfg.Bucket
}

func (b *S3Backend) LocationURI() string {
	return b.cfg.uri()
}

func (b *S3Backend) objectKey(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return path.Join(b.cfg.Prefix, contentType.Dir(), fmt.Sprintf("%x", id))
}
