// Package storage uploads tender documents to an S3-compatible object
// store and resolves canonical store URLs back to object keys.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/manvelegoyan072/bord-application/internal/config"
	"github.com/manvelegoyan072/bord-application/internal/fetch"
)

// Client wraps the object-store connection plus the canonical URL scheme
// used everywhere else in the pipeline.
type Client struct {
	s3          *minio.Client
	endpointURL string
	bucket      string
	fetcher     *fetch.Client
	logger      *slog.Logger
}

func NewClient(cfg config.StorageConfig, fetcher *fetch.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid S3 endpoint URL %q", cfg.EndpointURL)
	}

	s3, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme != "http",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		s3:          s3,
		endpointURL: strings.TrimRight(cfg.EndpointURL, "/"),
		bucket:      cfg.Bucket,
		fetcher:     fetcher,
		logger:      logger,
	}, nil
}

// ObjectKey builds the store key for a tender document.
func ObjectKey(tenderID, fileName string) string {
	return fmt.Sprintf("tenders/%s/%s", tenderID, fileName)
}

// ObjectURL derives the canonical URL of a stored object.
func (c *Client) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpointURL, c.bucket, key)
}

// Contains reports whether the URL lies under the configured store.
func (c *Client) Contains(rawURL string) bool {
	return strings.HasPrefix(rawURL, c.endpointURL+"/"+c.bucket+"/")
}

// KeyFromURL strips the endpoint and bucket prefix off a canonical URL.
func (c *Client) KeyFromURL(storeURL string) string {
	return strings.TrimPrefix(storeURL, c.endpointURL+"/"+c.bucket+"/")
}

// UploadBytes puts content under tenders/{tenderID}/{fileName} and returns
// the canonical URL.
func (c *Client) UploadBytes(ctx context.Context, content []byte, fileName, tenderID string) (string, error) {
	key := ObjectKey(tenderID, fileName)
	_, err := c.s3.PutObject(ctx, c.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	storeURL := c.ObjectURL(key)
	c.logger.Info("uploaded document to object store", "tender_id", tenderID, "file_name", fileName, "url", storeURL)
	return storeURL, nil
}

// UploadFromURL downloads the source (drive handshake included) and
// uploads it to the store.
func (c *Client) UploadFromURL(ctx context.Context, srcURL, fileName, tenderID string) (string, error) {
	content, err := c.fetcher.Get(ctx, srcURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", srcURL, err)
	}
	return c.UploadBytes(ctx, content, fileName, tenderID)
}

// UploadFromFile uploads a local file, used for browser downloads.
func (c *Client) UploadFromFile(ctx context.Context, filePath, fileName, tenderID string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filePath, err)
	}
	return c.UploadBytes(ctx, content, fileName, tenderID)
}

// Fetch downloads an object by its canonical URL and returns the bytes
// plus the base file name of the key.
func (c *Client) Fetch(ctx context.Context, storeURL string) ([]byte, string, error) {
	key := c.KeyFromURL(storeURL)
	obj, err := c.s3.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}
	return content, path.Base(key), nil
}
