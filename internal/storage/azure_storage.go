package storage

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobScheme addresses pages stored in Azure Blob Storage:
// azblob://<container>/<blob path>
const BlobScheme = "azblob"

type BlobStorage interface {
	GetPage(ctx context.Context, blobURL string) (image.Image, error)
}

type azureStorage struct {
	client *azblob.Client
}

// NewAzureStorage connects with a shared account key
func NewAzureStorage(accountName string, accountKey string) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &azureStorage{client: client}, nil
}

// NewAzureStorageFromConnectionString connects with a full connection
// string, which also covers the local Azurite emulator.
func NewAzureStorageFromConnectionString(connectionString string) (BlobStorage, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &azureStorage{client: client}, nil
}

func (s *azureStorage) GetPage(ctx context.Context, blobURL string) (image.Image, error) {
	containerName, blobName, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s failed: %w", containerName, blobName, err)
	}
	body := resp.Body
	defer body.Close()

	return decodePage(io.LimitReader(body, maxPageBytes))
}

// ParseBlobURL splits azblob://container/path/to/page.png into container and blob name
func ParseBlobURL(blobURL string) (string, string, error) {
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}
	if u.Scheme != BlobScheme {
		return "", "", fmt.Errorf("invalid blob URL %q: scheme must be %s", blobURL, BlobScheme)
	}
	blobName := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || blobName == "" {
		return "", "", fmt.Errorf("invalid blob URL %q: want %s://<container>/<blob>", blobURL, BlobScheme)
	}
	return u.Host, blobName, nil
}
