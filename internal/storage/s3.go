package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// S3Config configures the s3 backend.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectAPI is the subset of the S3 client used for collision checks.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// uploadAPI is the subset of the upload manager used to stream objects.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// errAborted is handed to the uploader when a destination is aborted.
var errAborted = errors.New("upload aborted")

// S3Backend uploads assets to <prefix>/<dir>/<name>.<ext> in a bucket.
type S3Backend struct {
	bucket   string
	prefix   string
	objects  objectAPI
	uploader uploadAPI
	now      Clock
}

// NewS3Backend builds an S3 client from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
// A custom endpoint (MinIO, R2, ...) switches to path-style addressing.
func NewS3Backend(ctx context.Context, cfg S3Config, now Clock) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for the s3 backend")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return newS3Backend(client, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, now), nil
}

func newS3Backend(objects objectAPI, uploader uploadAPI, bucket, prefix string, now Clock) *S3Backend {
	if now == nil {
		now = time.Now
	}
	return &S3Backend{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		objects:  objects,
		uploader: uploader,
		now:      now,
	}
}

// Name implements Backend.
func (b *S3Backend) Name() string { return BackendS3 }

// RequiresExtension implements Backend. Object keys are plain names.
func (b *S3Backend) RequiresExtension() bool { return true }

// Create implements Backend. A key is taken when HeadObject finds it; the
// check and the upload are not atomic, so concurrent publishers with the
// same display name can still race.
func (b *S3Backend) Create(ctx context.Context, target Target) (Destination, error) {
	if err := ValidateDisplayName(target.DisplayName); err != nil {
		return nil, err
	}

	dir, name := Name(target, true, b.now)

	key, err := claim(BackendS3, name, target.Ext != "", func(candidate string) (string, error) {
		key := path.Join(b.prefix, dir, candidate)
		exists, err := b.exists(ctx, key)
		if err != nil {
			return "", err
		}
		if exists {
			return "", errTaken
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	d := &s3Destination{
		pw:       pw,
		location: fmt.Sprintf("s3://%s/%s", b.bucket, key),
		done:     make(chan error, 1),
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   pr,
	}
	if target.MimeType != "" {
		input.ContentType = aws.String(target.MimeType)
	}

	go func() {
		_, err := b.uploader.Upload(ctx, input)
		// Unblock a writer still waiting on the pipe
		_ = pr.CloseWithError(err)
		d.done <- err
	}()

	logging.Debug("Streaming destination %s", d.location)
	return d, nil
}

func (b *S3Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %s: %w", key, err)
}

type s3Destination struct {
	pw       *io.PipeWriter
	location string
	written  int64
	done     chan error
	closed   bool
	err      error
}

func (d *s3Destination) Write(p []byte) (int, error) {
	n, err := d.pw.Write(p)
	d.written += int64(n)
	return n, err
}

// Close ends the stream and waits for the upload to complete.
func (d *s3Destination) Close() error {
	if d.closed {
		return d.err
	}
	d.closed = true

	_ = d.pw.Close()
	if err := <-d.done; err != nil {
		d.err = fmt.Errorf("s3 upload: %w", err)
		return d.err
	}
	metrics.PublishBytesWritten.WithLabelValues(BackendS3).Add(float64(d.written))
	return nil
}

// Abort fails the stream; the upload manager discards any multipart upload.
func (d *s3Destination) Abort() error {
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.pw.CloseWithError(errAborted)
	<-d.done
	return nil
}

func (d *s3Destination) Location() string { return d.location }

// LocalPath is empty; objects are not indexed locally.
func (d *s3Destination) LocalPath() string { return "" }
