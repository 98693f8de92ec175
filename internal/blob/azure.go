package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBucket stores objects in an Azure Blob Storage container under a key prefix.
type AzureBucket struct {
	client    *azblob.Client
	container string
	prefix    string
}

var _ Bucket = (*AzureBucket)(nil)

// NewAzureClient creates a blob client using shared-key credentials.
func NewAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required") //nolint:staticcheck
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	if cfg.Endpoint != "" {
		serviceURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return client, nil
}

// NewAzureBucket returns a container view rooted at prefix.
func NewAzureBucket(client *azblob.Client, container, prefix string) *AzureBucket {
	return &AzureBucket{client: client, container: container, prefix: strings.Trim(prefix, "/")}
}

// URI implements Bucket.
func (b *AzureBucket) URI(key string) string {
	return "az://" + b.container + "/" + joinKey(b.prefix, key)
}

// Exists implements Bucket.
func (b *AzureBucket) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(joinKey(b.prefix, key))
	_, err := blobClient.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", b.URI(key), err)
}

// Get implements Bucket.
func (b *AzureBucket) Get(ctx context.Context, key string, w io.Writer) error {
	resp, err := b.client.DownloadStream(ctx, b.container, joinKey(b.prefix, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return fmt.Errorf("%s: %w", b.URI(key), ErrNotExist)
		}
		return fmt.Errorf("download %s: %w", b.URI(key), err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read %s: %w", b.URI(key), err)
	}
	return nil
}

// Put implements Bucket. Block blobs are committed atomically.
func (b *AzureBucket) Put(ctx context.Context, key string, r io.Reader) error {
	if _, err := b.client.UploadStream(ctx, b.container, joinKey(b.prefix, key), r, nil); err != nil {
		return fmt.Errorf("upload %s: %w", b.URI(key), err)
	}
	return nil
}

// Delete implements Bucket.
func (b *AzureBucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteBlob(ctx, b.container, joinKey(b.prefix, key), nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete %s: %w", b.URI(key), err)
	}
	return nil
}

// List implements Bucket.
func (b *AzureBucket) List(ctx context.Context, prefix string) ([]string, error) {
	full := joinKey(b.prefix, prefix)
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{Prefix: &full})
	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.URI(prefix), err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, trimKey(b.prefix, *item.Name))
			}
		}
	}
	return keys, nil
}
