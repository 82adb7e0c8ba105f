package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
)

// AzureBlob writes backup objects to an Azure Blob container as block
// blobs. A blob only becomes visible once its block list commits, so a
// failed upload never leaves a readable partial object.
type AzureBlob struct {
	cfg       *config.Destination
	container azblob.ContainerURL
}

func NewAzureBlob(cfg *config.Destination, creds Credentials) (*AzureBlob, error) {
	if creds.AzureAccountKey == "" {
		return nil, fmt.Errorf("%w: azure account key missing for destination %s", backup.ErrAuthFailure, cfg.Name)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.Account, creds.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: azure shared key: %v", backup.ErrAuthFailure, err)
	}

	endpoint, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", cfg.Account, cfg.Container))
	if err != nil {
		return nil, fmt.Errorf("build container url: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	return &AzureBlob{
		cfg:       cfg,
		container: azblob.NewContainerURL(*endpoint, pipeline),
	}, nil
}

func (d *AzureBlob) Name() string {
	return d.cfg.Name
}

func (d *AzureBlob) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	blob := d.container.NewBlockBlobURL(key)
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, blob, azblob.UploadStreamToBlockBlobOptions{})
	if err != nil {
		return mapAzureError(err, "put "+key)
	}
	return nil
}

func (d *AzureBlob) Delete(ctx context.Context, key string) error {
	blob := d.container.NewBlockBlobURL(key)
	_, err := blob.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return mapAzureError(err, "delete "+key)
	}
	return nil
}

// Check fetches container properties, verifying reachability and the
// shared key credential.
func (d *AzureBlob) Check(ctx context.Context) error {
	_, err := d.container.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return mapAzureError(err, "check container "+d.cfg.Container)
	}
	return nil
}

// mapAzureError buckets storage errors into the engine's taxonomy.
func mapAzureError(err error, what string) error {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) {
		switch stgErr.ServiceCode() {
		case azblob.ServiceCodeAuthenticationFailed, azblob.ServiceCodeInsufficientAccountPermissions:
			return fmt.Errorf("%w: azure %s: %v", backup.ErrAuthFailure, what, err)
		case azblob.ServiceCodeServerBusy:
			return fmt.Errorf("%w: azure %s: %v", backup.ErrQuotaExceeded, what, err)
		case azblob.ServiceCodeBlobNotFound, azblob.ServiceCodeContainerNotFound:
			return fmt.Errorf("%w: azure %s: %v", backup.ErrNotFound, what, err)
		case azblob.ServiceCodeInternalError, azblob.ServiceCodeOperationTimedOut:
			return fmt.Errorf("%w: azure %s: %v", backup.ErrTransient, what, err)
		}
		if resp := stgErr.Response(); resp != nil {
			switch {
			case resp.StatusCode == 401 || resp.StatusCode == 403:
				return fmt.Errorf("%w: azure %s: %v", backup.ErrAuthFailure, what, err)
			case resp.StatusCode == 404:
				return fmt.Errorf("%w: azure %s: %v", backup.ErrNotFound, what, err)
			case resp.StatusCode == 429:
				return fmt.Errorf("%w: azure %s: %v", backup.ErrQuotaExceeded, what, err)
			case resp.StatusCode >= 500:
				return fmt.Errorf("%w: azure %s: %v", backup.ErrTransient, what, err)
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: azure %s: %v", backup.ErrTransient, what, err)
	}
	return fmt.Errorf("%w: azure %s: %v", backup.ErrTransient, what, err)
}
