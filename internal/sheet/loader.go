package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
)

// ObjectGetter is the slice of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var (
	// ErrLocalSource is returned for filesystem paths when the loader
	// only accepts remote sources.
	ErrLocalSource = errors.New("local file sources are not allowed")
	// ErrTooLarge is returned when an object exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Loader reads shipment files from disk, S3 or HTTP.
type Loader struct {
	s3         ObjectGetter
	http       Fetcher
	remoteOnly bool
	maxBytes   int64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// RemoteOnly rejects local paths. Use it wherever the source string
// comes from a client.
func RemoteOnly() LoaderOption {
	return func(l *Loader) { l.remoteOnly = true }
}

// WithMaxBytes caps how much of an S3 object is read. Zero means no cap.
// HTTP sources are capped by the Fetcher.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) { l.maxBytes = n }
}

// NewLoader creates a loader. Either backend may be nil; sources that need
// it then fail with a descriptive error.
func NewLoader(s3Client ObjectGetter, http Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{s3: s3Client, http: http}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region, profile string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Load reads and parses src: a local path, s3://bucket/key, or an
// http(s) URL. Local paths fail with ErrLocalSource on a RemoteOnly loader.
func (l *Loader) Load(ctx context.Context, src string) (*Result, error) {
	if l.remoteOnly && !IsRemote(src) {
		return nil, fmt.Errorf("%w: %s", ErrLocalSource, src)
	}
	format, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}
	data, err := l.read(ctx, src)
	if err != nil {
		return nil, err
	}
	res, err := Parse(format, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	logger.Info("shipment file loaded", "source", src, "format", format,
		"rows", res.OriginalRows, "duplicates_removed", res.DuplicatesRemoved)
	return res, nil
}

// IsRemote reports whether src names an S3 object or an http(s) URL.
func IsRemote(src string) bool {
	return isS3(src) || isHTTP(src)
}

func isS3(src string) bool { return strings.HasPrefix(src, "s3://") }

func isHTTP(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func (l *Loader) read(ctx context.Context, src string) ([]byte, error) {
	switch {
	case isS3(src):
		return l.readS3(ctx, src)
	case isHTTP(src):
		if l.http == nil {
			return nil, errors.New("http source given but no HTTP client configured")
		}
		return l.http.Fetch(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	return data, nil
}

// SplitS3URI splits s3://bucket/key.
func SplitS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs bucket and key: %s", uri)
	}
	return bucket, key, nil
}

func (l *Loader) readS3(ctx context.Context, uri string) ([]byte, error) {
	if l.s3 == nil {
		return nil, errors.New("s3 source given but no S3 client configured")
	}
	bucket, key, err := SplitS3URI(uri)
	if err != nil {
		return nil, err
	}
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting S3 object %s: %w", uri, err)
	}
	defer out.Body.Close()

	var body io.Reader = out.Body
	if l.maxBytes > 0 {
		body = io.LimitReader(out.Body, l.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object %s: %w", uri, err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, uri, l.maxBytes)
	}
	return data, nil
}
