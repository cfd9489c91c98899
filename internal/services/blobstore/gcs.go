package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const defaultSignedURLExpiry = 7 * 24 * time.Hour

// Uploader publishes a local file and returns a URL the delivery channel can
// fetch. Implementations must be safe for concurrent use.
type Uploader interface {
	UploadFile(ctx context.Context, objectName, localPath, contentType string) (string, error)
}

// Config captures the runtime settings for the clip bucket.
type Config struct {
	Bucket              string
	CredentialsFile     string
	ObjectPrefix        string
	SignedURLExpiryMins int
}

// GCS implements Uploader on a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    Config
	expiry time.Duration
}

// New connects to Cloud Storage using the configured service account.
func New(ctx context.Context, cfg Config) (*GCS, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("blobstore: bucket required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: new client: %w", err)
	}

	expiry := defaultSignedURLExpiry
	if cfg.SignedURLExpiryMins > 0 {
		expiry = time.Duration(cfg.SignedURLExpiryMins) * time.Minute
	}
	return &GCS{client: client, cfg: cfg, expiry: expiry}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// UploadFile streams the local file into the bucket and returns a signed URL
// for the object.
func (g *GCS) UploadFile(ctx context.Context, objectName, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("blobstore: open %s: %w", localPath, err)
	}
	defer f.Close()

	object := g.objectPath(objectName)
	wc := g.client.Bucket(g.cfg.Bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}
	if _, err := io.Copy(wc, f); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("blobstore: write %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("blobstore: finalize %s: %w", object, err)
	}

	return g.SignedURL(object)
}

// SignedURL produces a time-limited GET URL for an object already in the
// bucket.
func (g *GCS) SignedURL(object string) (string, error) {
	url, err := g.client.Bucket(g.cfg.Bucket).SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: sign %s: %w", object, err)
	}
	return url, nil
}

func (g *GCS) objectPath(objectName string) string {
	if g.cfg.ObjectPrefix == "" {
		return objectName
	}
	return path.Join(g.cfg.ObjectPrefix, objectName)
}
