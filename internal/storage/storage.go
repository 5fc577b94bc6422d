package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/fx"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewService),
)

// ErrNotEnabled is returned by every operation when storage is not configured.
var ErrNotEnabled = errors.New("storage service not enabled")

// Location identifies an object in a bucket.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as an s3:// URL.
func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// ParseLocation accepts "s3://bucket/key" URLs. A value without a scheme is
// treated as a key in defaultBucket.
func ParseLocation(raw, defaultBucket string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("empty storage location")
	}

	if !strings.Contains(raw, "://") {
		if defaultBucket == "" {
			return Location{}, fmt.Errorf("location %q has no bucket", raw)
		}
		return Location{Bucket: defaultBucket, Key: strings.TrimPrefix(raw, "/")}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("location %q must name a bucket and key", raw)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Service provides S3-compatible operations on transcript objects
type Service struct {
	client        *s3.Client
	defaultBucket string
	log           *slog.Logger
}

// NewService creates a new storage service
func NewService(cfg *config.StorageConfig, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))

	if !cfg.IsConfigured() {
		log.Warn("storage service disabled - no credentials provided")
		return &Service{defaultBucket: cfg.Bucket, log: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			// MinIO needs path-style addressing
			o.UsePathStyle = true
		}
	})

	log.Info("storage service initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)

	return &Service{client: client, defaultBucket: cfg.Bucket, log: log}, nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Enabled returns true if the storage service is properly configured
func (s *Service) Enabled() bool {
	return s.client != nil
}

// DeleteLocation removes the object at a location URL. Deleting a missing
// object succeeds.
func (s *Service) DeleteLocation(ctx context.Context, location string) error {
	if !s.Enabled() {
		return ErrNotEnabled
	}

	loc, err := ParseLocation(location, s.defaultBucket)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil && !isNotFound(err) {
		s.log.Error("failed to delete object",
			slog.String("location", loc.String()),
			logger.Error(err),
		)
		return fmt.Errorf("delete failed: %w", err)
	}

	s.log.Debug("object deleted", slog.String("location", loc.String()))
	return nil
}

// Exists checks if an object exists at a location URL
func (s *Service) Exists(ctx context.Context, location string) (bool, error) {
	if !s.Enabled() {
		return false, ErrNotEnabled
	}

	loc, err := ParseLocation(location, s.defaultBucket)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object failed: %w", err)
	}

	return true, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
