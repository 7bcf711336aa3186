// Package archive keeps the untouched upstream payload of every fetched sync
// period in S3-compatible object storage so a period can be inspected or
// replayed later.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"retention_backend/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DownloadURLTTL is how long a presigned download link stays valid.
const DownloadURLTTL = 15 * time.Minute

// Archiver stores raw period payloads.
type Archiver interface {
	Store(ctx context.Context, ownerID uuid.UUID, platform, period string, payload []byte) (string, error)
	DownloadURL(ctx context.Context, ownerID uuid.UUID, platform, period string) (string, error)
}

// Key is the object key of one period: <owner>/<platform>/<period>.json.
func Key(ownerID uuid.UUID, platform, period string) string {
	return path.Join(ownerID.String(), platform, period+".json")
}

// MinIO archives payloads in a MinIO bucket.
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO connects to the configured endpoint.
func NewMinIO(cfg config.ArchiveConfig) (*MinIO, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIO{client: client, bucket: cfg.GetMinioBucketRawPayloads()}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (m *MinIO) EnsureBucketExists(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// Store writes payload, replacing any earlier archive of the same period.
func (m *MinIO) Store(ctx context.Context, ownerID uuid.UUID, platform, period string, payload []byte) (string, error) {
	key := Key(ownerID, platform, period)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return key, nil
}

// DownloadURL returns a presigned link to an archived period.
func (m *MinIO) DownloadURL(ctx context.Context, ownerID uuid.UUID, platform, period string) (string, error) {
	key := Key(ownerID, platform, period)
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, DownloadURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Memory keeps payloads in process.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Store(_ context.Context, ownerID uuid.UUID, platform, period string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(ownerID, platform, period)
	m.objects[key] = append([]byte(nil), payload...)
	return key, nil
}

func (m *Memory) DownloadURL(_ context.Context, ownerID uuid.UUID, platform, period string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(ownerID, platform, period)
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("no archive for %s", key)
	}
	return "memory://" + key, nil
}

// Object returns a stored payload.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
