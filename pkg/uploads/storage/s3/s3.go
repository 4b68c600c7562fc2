package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/catalog-uploads/pkg/uploads"
)

// Config options for the S3 backend
type Config struct {
	Region          string // Region, "auto" for R2
	Bucket          string // Bucket name
	AccessKeyID     string // Access key ID
	SecretAccessKey string // Secret access key
	Endpoint        string // Custom endpoint for S3-compatible services (R2, MinIO)
	UsePathStyle    bool   // Use path-style addressing

	// Observer receives per-request timings; optional
	Observer uploads.StoreObserver
}

// Backend is an S3-compatible implementation of the uploads.BlobStore interface
type Backend struct {
	client   *s3.Client
	bucket   string
	observer uploads.StoreObserver
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "auto"
	}

	backend := &Backend{
		bucket:   config.Bucket,
		observer: config.Observer,
	}

	// The same key pair signs the browser's grants, so there is no SDK credential
	// chain fallback: a missing pair makes every call fail closed.
	if config.AccessKeyID == "" || config.SecretAccessKey == "" {
		return backend, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Configure S3 client options
	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	backend.client = s3.NewFromConfig(awsCfg, s3Options...)
	return backend, nil
}

// Configured reports whether the backend holds a client
func (b *Backend) Configured() bool {
	return b.client != nil
}

// GetObjectMeta retrieves metadata for an object with HeadObject
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (meta *uploads.ObjectMeta, err error) {
	if b.client == nil {
		return nil, uploads.ErrNotConfigured
	}
	defer b.observe("head", time.Now(), &err)

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, classify(err, objectKey, "failed to get object metadata")
	}

	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}

	metadata := make(map[string]string)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	metadata["content_type"] = contentType

	meta = &uploads.ObjectMeta{
		Key:         objectKey,
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: contentType,
		UpdatedAt:   aws.ToTime(result.LastModified),
		ETag:        strings.Trim(aws.ToString(result.ETag), "\""),
		Metadata:    metadata,
	}
	return meta, nil
}

// DownloadRange issues a ranged GetObject
func (b *Backend) DownloadRange(ctx context.Context, objectKey string, offset, length int64) (rc io.ReadCloser, err error) {
	if b.client == nil {
		return nil, uploads.ErrNotConfigured
	}
	if length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	defer b.observe("get_range", time.Now(), &err)

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		// Empty objects have no satisfiable range
		if statusCode(err) == http.StatusRequestedRangeNotSatisfiable {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, classify(err, objectKey, "failed to download range")
	}

	return result.Body, nil
}

// Delete deletes an object; S3 reports success for missing keys
func (b *Backend) Delete(ctx context.Context, objectKey string) (err error) {
	if b.client == nil {
		return uploads.ErrNotConfigured
	}
	defer b.observe("delete", time.Now(), &err)

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if errors.Is(classify(err, objectKey, ""), uploads.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// UploadWithParams uploads content with its content type through the multipart manager
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params uploads.UploadParams) (err error) {
	if b.client == nil {
		return uploads.ErrNotConfigured
	}
	defer b.observe("put", time.Now(), &err)

	uploader := manager.NewUploader(b.client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(params.ObjectKey),
		Body:   reader,
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}

	if _, err = uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 with params: %w", err)
	}
	return nil
}

func (b *Backend) observe(op string, start time.Time, err *error) {
	if b.observer != nil {
		b.observer.ObserveStoreRequest(op, time.Since(start), *err)
	}
}

// classify maps SDK errors onto the uploads sentinels.
func classify(err error, objectKey, msg string) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || statusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %s", uploads.ErrObjectNotFound, objectKey)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", uploads.ErrObjectNotFound, objectKey)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
			return fmt.Errorf("%w: %s", uploads.ErrNotConfigured, apiErr.ErrorCode())
		}
	}

	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func statusCode(err error) int {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
