// Package s3 provides an AWS S3 implementation of filestore.Store.
//
// Unlike the MinIO driver it hands the service's own ListObjectsV2
// continuation tokens straight through as cursors.
package s3

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
)

// Driver is an S3 implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// New builds an S3 client from cfg. Static credentials are used when
// AccessKey is set, otherwise the SDK default chain applies. A non-empty
// Endpoint targets an S3-compatible service with path-style addressing.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "failed to load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http://"
			if cfg.UseSSL {
				scheme = "https://"
			}
			o.BaseEndpoint = aws.String(scheme + cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Driver{
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// --- filestore.Store implementation ---

// Ping lists buckets to confirm credentials and connectivity.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op as S3 clients do not require closing.
func (d *Driver) Close() error {
	return nil
}

// List performs one ListObjectsV2 call.
func (d *Driver) List(ctx context.Context, bucket string, opts filestore.ListOptions) (*filestore.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(min(opts.MaxKeys, 1000))) //nolint:gosec // bounded above
	}

	output, err := d.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, mapError(err, "failed to list objects")
	}

	res := &filestore.ListResult{
		Objects: make([]filestore.ObjectInfo, 0, len(output.Contents)),
	}
	for _, obj := range output.Contents {
		res.Objects = append(res.Objects, filestore.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(output.IsTruncated) && output.NextContinuationToken != nil {
		res.ContinuationToken = aws.ToString(output.NextContinuationToken)
	}

	return res, nil
}

// GetObject opens a streaming handle to the object body.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	output, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	return &object{
		ReadCloser: output.Body,
		info: &filestore.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ContentType:  aws.ToString(output.ContentType),
			ETag:         aws.ToString(output.ETag),
			LastModified: aws.ToTime(output.LastModified),
		},
	}, nil
}

// StatObject issues a HeadObject.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	output, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}

	return &filestore.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		ContentType:  aws.ToString(output.ContentType),
		ETag:         aws.ToString(output.ETag),
		LastModified: aws.ToTime(output.LastModified),
	}, nil
}

// PutObject uploads size bytes from r to key.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	output, err := d.client.PutObject(ctx, input)
	if err != nil {
		return nil, mapError(err, "failed to put object")
	}

	return &filestore.ObjectInfo{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         aws.ToString(output.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

// PresignGetURL signs a GetObject request valid for ttl.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := d.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL")
	}
	return req.URL, nil
}

// object wraps a GetObject body and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
