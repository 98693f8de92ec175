package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Bucket stores objects in an S3-compatible bucket under a key prefix.
type S3Bucket struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Bucket = (*S3Bucket)(nil)

// NewS3Client builds an S3 client from static credentials. A custom endpoint
// enables S3-compatible providers; path-style addressing is used unless
// URLStyle is "vhost".
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	if cfg.KeyID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("S3 credentials are not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.KeyID, cfg.Secret, "",
		),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = cfg.URLStyle != "vhost"
	}
	return s3.New(opts), nil
}

// NewS3Bucket returns a bucket view rooted at prefix.
func NewS3Bucket(client *s3.Client, bucket, prefix string) *S3Bucket {
	return &S3Bucket{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// URI implements Bucket.
func (b *S3Bucket) URI(key string) string {
	return "s3://" + b.bucket + "/" + joinKey(b.prefix, key)
}

// Exists implements Bucket.
func (b *S3Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinKey(b.prefix, key)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", b.URI(key), err)
}

// Get implements Bucket.
func (b *S3Bucket) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinKey(b.prefix, key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%s: %w", b.URI(key), ErrNotExist)
		}
		return fmt.Errorf("get %s: %w", b.URI(key), err)
	}
	defer out.Body.Close() //nolint:errcheck
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("read %s: %w", b.URI(key), err)
	}
	return nil
}

// Put implements Bucket. S3 PUTs are atomic per object.
func (b *S3Bucket) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(joinKey(b.prefix, key)),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", b.URI(key), err)
	}
	return nil
}

// Delete implements Bucket.
func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinKey(b.prefix, key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", b.URI(key), err)
	}
	return nil
}

// List implements Bucket.
func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(joinKey(b.prefix, prefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.URI(prefix), err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, trimKey(b.prefix, aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
