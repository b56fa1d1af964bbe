// Package s3 stores the ban document as a single object in an S3-compatible
// bucket. The object ETag is the revision and writes use conditional
// requests (If-Match / If-None-Match), so a stale writer gets a precondition
// failure instead of overwriting.
package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-hclog"

	"github.com/rbxmod/banlist/pkg/docstore"
)

var _ docstore.Store = (*Adapter)(nil)

// API is the subset of the S3 client used by the adapter.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Adapter provides S3-compatible storage for the ban document.
type Adapter struct {
	client API
	cfg    *Config
	key    string
	logger hclog.Logger
}

// NewAdapter creates a new S3 document adapter.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}
	cfg.SetDefaults()

	awsCfg, err := createAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Path-style addressing for MinIO and friends.
			o.UsePathStyle = true
		}
	})

	return NewAdapterWithClient(cfg, client, logger), nil
}

// NewAdapterWithClient creates an adapter around an existing client.
func NewAdapterWithClient(cfg *Config, client API, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Adapter{
		client: client,
		cfg:    cfg,
		key:    cfg.objectKey(),
		logger: logger.Named("s3-store"),
	}
}

// createAWSConfig creates AWS SDK configuration from S3 config.
func createAWSConfig(cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	return config.LoadDefaultConfig(context.Background(), opts...)
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "s3"
}

// Get downloads the document object.
func (a *Adapter) Get(ctx context.Context) (*docstore.Object, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", a.cfg.Bucket, a.key, mapError(err))
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", a.cfg.Bucket, a.key, err)
	}

	return &docstore.Object{Content: content, Revision: aws.ToString(out.ETag)}, nil
}

// Put uploads content conditioned on the current ETag.
func (a *Adapter) Put(ctx context.Context, content []byte, revision, message string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(a.key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			// Metadata values must be ASCII.
			"banlist-message": url.QueryEscape(message),
		},
	}
	if revision == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(revision)
	}

	out, err := a.client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to put s3://%s/%s: %w", a.cfg.Bucket, a.key, mapError(err))
	}

	etag := aws.ToString(out.ETag)
	a.logger.Debug("wrote document", "key", a.key, "previous_etag", revision, "etag", etag)
	return etag, nil
}

// mapError converts S3 errors to docstore sentinels while keeping the
// original error in the chain.
func mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
		}
	}
	return err
}
