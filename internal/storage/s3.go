package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options are client-wide settings that do not belong to a RemoteConfig.
type Options struct {
	// Endpoint points the client at an S3-compatible store. A RemoteConfig
	// with its own Endpoint takes precedence.
	Endpoint  string
	PathStyle bool
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsCfg.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// s3Storage implements RemoteStorage against one bucket.
type s3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	region        string
	endpoint      string
}

// NewClientFactory returns a ClientFactory producing S3 clients with opts.
func NewClientFactory(opts Options) ClientFactory {
	return func(ctx context.Context, cfg domain.RemoteConfig) (RemoteStorage, error) {
		return NewS3Storage(ctx, cfg, opts)
	}
}

// NewS3Storage creates a client from a RemoteConfig snapshot. Credentials,
// bucket and region are trimmed of surrounding whitespace.
func NewS3Storage(ctx context.Context, cfg domain.RemoteConfig, opts Options) (RemoteStorage, error) {
	accessKey := strings.TrimSpace(cfg.AccessKey)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = domain.DefaultRegion
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrValidation)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(opts.Endpoint)
	}

	sdkConfig, err := loadDefaultAWSConfig(ctx,
		awsCfg.WithRegion(region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		// Retries are a manual operator decision.
		awsCfg.WithRetryMaxAttempts(1),
	)
	if err != nil {
		logging.Error("failed to load AWS SDK config", zap.Error(err))
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(sdkConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// S3-compatible stores generally need path-style addressing and
			// reject the newer default checksum headers.
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		if opts.PathStyle {
			o.UsePathStyle = true
		}
	})

	return &s3Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		region:        region,
		endpoint:      strings.TrimSuffix(endpoint, "/"),
	}, nil
}

func (s *s3Storage) Bucket() string { return s.bucket }

// Put uploads data under key.
func (s *s3Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = DefaultMimetype
	}
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	metrics.RecordRemoteOperation("put_object", time.Since(start), err == nil)
	if err != nil {
		rerr := &RemoteError{Op: "put", Key: key, Kind: Classify(err), Err: err}
		// Writes only fail as transient, auth or unknown; a missing bucket is unknown.
		if rerr.Kind == ErrRemoteNotFound {
			rerr.Kind = ErrUnknown
		}
		return rerr
	}
	metrics.RecordUploadedBytes(int64(len(data)))
	logging.Debug("remote put object", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Get downloads the object stored under key.
func (s *s3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordRemoteOperation("get_object", time.Since(start), false)
		return nil, newRemoteError("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	metrics.RecordRemoteOperation("get_object", time.Since(start), err == nil)
	if err != nil {
		return nil, newRemoteError("get", key, err)
	}
	return data, nil
}

// Head reports whether key exists.
func (s *s3Storage) Head(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if Classify(err) == ErrRemoteNotFound {
			metrics.RecordRemoteOperation("head_object", time.Since(start), true)
			return false, nil
		}
		metrics.RecordRemoteOperation("head_object", time.Since(start), false)
		return false, newRemoteError("head", key, err)
	}
	metrics.RecordRemoteOperation("head_object", time.Since(start), true)
	return true, nil
}

// TestConnection verifies the bucket exists and accepts writes.
func (s *s3Storage) TestConnection(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	metrics.RecordRemoteOperation("head_bucket", time.Since(start), err == nil)
	if err != nil {
		return newRemoteError("head bucket", s.bucket, err)
	}

	canary := fmt.Sprintf("test_connection_%s.txt", uuid.NewString())
	if err := s.Put(ctx, canary, []byte("Test connection from attachment-offload"), "text/plain"); err != nil {
		return err
	}
	logging.Info("remote storage connection test passed", zap.String("bucket", s.bucket), zap.String("canary", canary))
	return nil
}

// PublicURL returns the virtual-hosted AWS URL, or <endpoint>/<bucket>/<key>
// for custom endpoints.
func (s *s3Storage) PublicURL(key string) string {
	escaped := escapeKey(key)
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

// PresignGet creates a temporary URL that allows GET requests for key.
func (s *s3Storage) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		logging.Error("failed to presign GET", zap.String("key", key), zap.Error(err))
		return "", newRemoteError("presign get", key, err)
	}
	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
