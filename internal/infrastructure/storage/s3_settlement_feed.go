// Package storage reads and writes marketplace settlement exports kept in an
// S3-compatible bucket.
package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	infraconfig "github.com/erp/reconciler/internal/infrastructure/config"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxLineSize bounds one JSON line of a settlement export (1MB)
const maxLineSize = 1024 * 1024

// exportSuffix marks the objects the feed reads
const exportSuffix = ".jsonl"

// ErrBucketRequired is returned for a configuration without a bucket
var ErrBucketRequired = errors.New("storage: settlement bucket is required")

// objectAPI is the part of the S3 client the feed uses
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3SettlementFeed implements payment.SettlementFeed over JSON-lines exports
// stored under <prefix>/<marketplace>/. Every object modified at or after
// the requested instant is read in key order; payments deduplicate by
// external reference, so re-reading an export is harmless.
type S3SettlementFeed struct {
	client objectAPI
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// S3SettlementFeedOption is a functional option for configuring S3SettlementFeed
type S3SettlementFeedOption func(*S3SettlementFeed)

// WithLogger sets a custom logger for S3SettlementFeed
func WithLogger(logger *zap.Logger) S3SettlementFeedOption {
	return func(f *S3SettlementFeed) {
		f.logger = logger
	}
}

// NewS3SettlementFeed creates a feed from configuration. Static credentials
// are used when both keys are set; otherwise the default AWS credential
// chain applies.
func NewS3SettlementFeed(ctx context.Context, cfg *infraconfig.SettlementConfig, opts ...S3SettlementFeedOption) (*S3SettlementFeed, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var endpoint *string
	if cfg.Endpoint != "" {
		e := cfg.Endpoint
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			e = "https://" + e
		}
		if _, err := url.Parse(e); err != nil {
			return nil, fmt.Errorf("invalid settlement endpoint: %w", err)
		}
		endpoint = aws.String(e)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
	return newS3SettlementFeed(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3SettlementFeed(client objectAPI, bucket, prefix string, opts ...S3SettlementFeedOption) *S3SettlementFeed {
	f := &S3SettlementFeed{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Bucket returns the bucket name
func (f *S3SettlementFeed) Bucket() string {
	return f.bucket
}

func (f *S3SettlementFeed) marketplacePrefix(m marketplace.Marketplace) string {
	if f.prefix == "" {
		return string(m) + "/"
	}
	return f.prefix + "/" + string(m) + "/"
}

// Fetch returns the lines of every export for m modified at or after since
func (f *S3SettlementFeed) Fetch(ctx context.Context, m marketplace.Marketplace, since time.Time) ([]payment.Line, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement_feed", "fetch",
		telemetry.WithAttribute("marketplace", string(m)))
	defer span.End()

	keys, err := f.listExports(ctx, m, since)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var lines []payment.Line
	for _, key := range keys {
		batch, err := f.readExport(ctx, key)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		lines = append(lines, batch...)
	}
	telemetry.SetAttribute(span, "objects", len(keys))
	telemetry.SetAttribute(span, "lines", len(lines))
	f.logger.Info("Settlement exports read",
		zap.String("marketplace", string(m)),
		zap.Time("since", since),
		zap.Int("objects", len(keys)),
		zap.Int("lines", len(lines)))
	return lines, nil
}

func (f *S3SettlementFeed) listExports(ctx context.Context, m marketplace.Marketplace, since time.Time) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(f.marketplacePrefix(m)),
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list settlement exports: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, exportSuffix) {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.Before(since) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *S3SettlementFeed) readExport(ctx context.Context, key string) ([]payment.Line, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			// deleted between list and get
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settlement export %s: %w", key, err)
	}
	defer out.Body.Close()

	scanner := bufio.NewScanner(out.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var (
		lines   []payment.Line
		lineNo  int
		skipped int
	)
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line payment.Line
		if err := json.Unmarshal(raw, &line); err != nil {
			skipped++
			f.logger.Warn("Skipping malformed settlement line",
				zap.String("key", key),
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan settlement export %s: %w", key, err)
	}
	if skipped > 0 {
		f.logger.Warn("Settlement export had malformed lines", zap.String("key", key), zap.Int("skipped", skipped))
	}
	return lines, nil
}

// Publish writes lines as a new export for m and returns its key. The
// ingest endpoint archives uploaded batches this way so a later Pull sees
// the same data.
func (f *S3SettlementFeed) Publish(ctx context.Context, m marketplace.Marketplace, lines []payment.Line) (string, error) {
	if len(lines) == 0 {
		return "", errors.New("storage: nothing to publish")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range lines {
		if err := enc.Encode(&lines[i]); err != nil {
			return "", fmt.Errorf("failed to encode settlement line: %w", err)
		}
	}

	now := f.now().UTC()
	key := path.Join(f.marketplacePrefix(m), now.Format("2006-01-02"), now.Format("150405.000000000")+exportSuffix)
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish settlement export: %w", err)
	}
	f.logger.Info("Settlement export published", zap.String("key", key), zap.Int("lines", len(lines)))
	return key, nil
}

// Ping checks that the bucket is reachable
func (f *S3SettlementFeed) Ping(ctx context.Context) error {
	_, err := f.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(f.bucket)})
	if err != nil {
		return fmt.Errorf("settlement bucket %s unreachable: %w", f.bucket, err)
	}
	return nil
}

var _ payment.SettlementFeed = (*S3SettlementFeed)(nil)
