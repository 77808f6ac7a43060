package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Sink delivers a finished summary somewhere.
type Sink interface {
	Write(ctx context.Context, s *Summary) error
	String() string
}

// S3Options configures the S3 sink. Empty fields fall back to the default
// AWS credential chain and region.
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// SinkOptions configures ParseSink.
type SinkOptions struct {
	Stdout io.Writer
	Text   Options
	S3     S3Options
	Logger *zap.Logger
}

// ParseSink builds a sink from its spec:
//
//	stdout              text summary on stdout
//	json                JSON summary on stdout
//	file:<path>         JSON file, gzip-compressed when path ends in .gz
//	s3://bucket/key     JSON object; a key ending in / gets <run id>.json appended
func ParseSink(ctx context.Context, spec string, opts SinkOptions) (Sink, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch {
	case spec == "" || spec == "stdout":
		return &TextSink{w: opts.Stdout, opts: opts.Text}, nil
	case spec == "json":
		return &JSONSink{w: opts.Stdout}, nil
	case strings.HasPrefix(spec, "file:"):
		path := strings.TrimPrefix(spec, "file:")
		if path == "" {
			return nil, fmt.Errorf("report: file sink needs a path")
		}
		return &FileSink{path: path, logger: opts.Logger}, nil
	case strings.HasPrefix(spec, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(spec, "s3://"), "/")
		if !ok || bucket == "" {
			return nil, fmt.Errorf("report: s3 sink needs s3://bucket/key, got %q", spec)
		}
		client, err := newS3Client(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(client, bucket, key, opts.Logger), nil
	}
	return nil, fmt.Errorf("report: unknown sink %q", spec)
}

// TextSink prints the text summary.
type TextSink struct {
	w    io.Writer
	opts Options
}

func (t *TextSink) Write(_ context.Context, s *Summary) error {
	return WriteText(t.w, s, t.opts)
}

func (t *TextSink) String() string { return "stdout" }

// JSONSink prints the summary as indented JSON.
type JSONSink struct {
	w io.Writer
}

func (j *JSONSink) Write(_ context.Context, s *Summary) error {
	return encodeJSON(j.w, s, false)
}

func (j *JSONSink) String() string { return "json" }

// FileSink writes the summary to a local file.
type FileSink struct {
	path   string
	logger *zap.Logger
}

func (f *FileSink) Write(_ context.Context, s *Summary) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create %s: %w", dir, err)
		}
	}
	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", f.path, err)
	}
	if err := encodeJSON(file, s, isGzip(f.path)); err != nil {
		_ = file.Close()
		return fmt.Errorf("report: write %s: %w", f.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", f.path, err)
	}
	f.logger.Info("summary written", zap.String("path", f.path))
	return nil
}

func (f *FileSink) String() string { return "file:" + f.path }

// ObjectPutter is the subset of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the summary as an object.
type S3Sink struct {
	client ObjectPutter
	bucket string
	key    string
	logger *zap.Logger
}

// NewS3Sink creates a sink writing to bucket/key.
func NewS3Sink(client ObjectPutter, bucket, key string, logger *zap.Logger) *S3Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Sink{client: client, bucket: bucket, key: key, logger: logger}
}

// ObjectKey resolves the key for a summary.
func (s *S3Sink) ObjectKey(sum *Summary) string {
	if s.key == "" || strings.HasSuffix(s.key, "/") {
		return s.key + sum.RunID + ".json"
	}
	return s.key
}

func (s *S3Sink) Write(ctx context.Context, sum *Summary) error {
	key := s.ObjectKey(sum)
	gz := isGzip(key)

	var buf bytes.Buffer
	if err := encodeJSON(&buf, sum, gz); err != nil {
		return fmt.Errorf("report: encode summary: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	}
	if gz {
		input.ContentEncoding = aws.String("gzip")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("report: put object %s/%s: %w", s.bucket, key, err)
	}

	s.logger.Info("summary uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key))
	return nil
}

func (s *S3Sink) String() string { return "s3://" + s.bucket + "/" + s.key }

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("report: load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), nil
}

func isGzip(name string) bool {
	return strings.HasSuffix(name, ".gz")
}

func encodeJSON(w io.Writer, s *Summary, gz bool) error {
	if !gz {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
