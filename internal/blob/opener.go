package blob

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds static credentials for S3-compatible storage.
type S3Config struct {
	KeyID    string
	Secret   string
	Endpoint string
	Region   string
	URLStyle string
}

// GCSConfig configures Google Cloud Storage access.
type GCSConfig struct {
	KeyFile string
}

// AzureConfig holds shared-key credentials for Azure Blob Storage.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Endpoint    string
}

// Config groups the credentials for every supported remote backend.
type Config struct {
	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig
}

// Opener opens buckets for storage locations, creating each remote client
// once and reusing it.
type Opener struct {
	cfg Config

	mu    sync.Mutex
	s3    *s3.Client
	gcs   *storage.Client
	azure map[string]*azblob.Client
}

// NewOpener returns an Opener using cfg for remote credentials.
func NewOpener(cfg Config) *Opener {
	return &Opener{cfg: cfg, azure: make(map[string]*azblob.Client)}
}

// OpenURI parses uri and opens a bucket rooted at it.
func (o *Opener) OpenURI(ctx context.Context, uri string) (Bucket, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return o.Open(ctx, loc)
}

// Open returns a bucket rooted at loc.
func (o *Opener) Open(ctx context.Context, loc Location) (Bucket, error) {
	switch loc.Scheme {
	case SchemeFile:
		return NewLocalBucket(loc.Key), nil
	case SchemeS3:
		client, err := o.s3Client()
		if err != nil {
			return nil, err
		}
		return NewS3Bucket(client, loc.Bucket, loc.Key), nil
	case SchemeGCS:
		client, err := o.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		return NewGCSBucket(client, loc.Bucket, loc.Key), nil
	case SchemeAzure:
		client, err := o.azureClient(loc.Account)
		if err != nil {
			return nil, err
		}
		return NewAzureBucket(client, loc.Bucket, loc.Key), nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", loc.Scheme)
	}
}

// Close releases remote clients that hold resources.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs != nil {
		err := o.gcs.Close()
		o.gcs = nil
		return err
	}
	return nil
}

func (o *Opener) s3Client() (*s3.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s3 == nil {
		c, err := NewS3Client(o.cfg.S3)
		if err != nil {
			return nil, err
		}
		o.s3 = c
	}
	return o.s3, nil
}

func (o *Opener) gcsClient(ctx context.Context) (*storage.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs == nil {
		c, err := NewGCSClient(ctx, o.cfg.GCS)
		if err != nil {
			return nil, err
		}
		o.gcs = c
	}
	return o.gcs, nil
}

func (o *Opener) azureClient(account string) (*azblob.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg := o.cfg.Azure
	if account != "" && account != cfg.AccountName {
		if cfg.AccountName != "" {
			return nil, fmt.Errorf("no credentials configured for Azure account %q", account)
		}
		cfg.AccountName = account
	}
	if c, ok := o.azure[cfg.AccountName]; ok {
		return c, nil
	}
	c, err := NewAzureClient(cfg)
	if err != nil {
		return nil, err
	}
	o.azure[cfg.AccountName] = c
	return c, nil
}
