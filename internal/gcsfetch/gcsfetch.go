package gcsfetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Fetcher retrieves receipt bytes from object storage. It is an interface so
// handlers and jobs can be tested without a GCS connection.
type Fetcher interface {
	FetchReceipt(ctx context.Context, gcsURI string) ([]byte, error)
}

// Client talks to Google Cloud Storage. It assumes Application Default
// Credentials are configured (gcloud auth application-default login).
type Client struct{}

func NewClient() *Client {
	return &Client{}
}

// FetchReceipt downloads the receipt bytes from the given GCS URI.
func (c *Client) FetchReceipt(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchReceipt: creating storage client: %w", err)
	}
	defer storageClient.Close()

	rc, err := storageClient.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchReceipt: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchReceipt: reading bytes: %w", err)
	}

	return data, nil
}

// UploadReceipt stores receipt bytes under the given object name and returns
// the resulting GCS URI.
func (c *Client) UploadReceipt(ctx context.Context, bucketName, objectName string, data []byte) (string, error) {
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("uploadReceipt: creating storage client: %w", err)
	}
	defer storageClient.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := storageClient.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("uploadReceipt: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploadReceipt: finalizing upload: %w", err)
	}

	return "gs://" + bucketName + "/" + objectName, nil
}

// ParseGCSURI splits "gs://bucket/path/to/file" into bucket and object path.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/receipts/lunch.jpg" → "lunch.jpg"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// MIMETypeFromURI guesses the receipt content type from the object's
// extension, defaulting to image/jpeg for camera uploads with no extension.
func MIMETypeFromURI(uri string) string {
	if t := mime.TypeByExtension(path.Ext(FilenameFromURI(uri))); t != "" {
		return t
	}
	return "image/jpeg"
}

var _ Fetcher = (*Client)(nil)
