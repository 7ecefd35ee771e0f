package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/cache"
	"anonhost/internal/metrics"
)

const (
	// HealthTTL is how long a successful reachability probe is trusted.
	HealthTTL = 5 * time.Minute
	// UnhealthyTTL is how long a failed probe is served before re-probing.
	UnhealthyTTL = 30 * time.Second
)

// Adapter fronts an ObjectStore with a memoized reachability probe and
// public URL construction.
type Adapter struct {
	store     ObjectStore
	health    *cache.Memo[bool]
	publicURL string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewAdapter(store ObjectStore, health *cache.Memo[bool], publicURL string, logger *slog.Logger, m *metrics.Metrics) *Adapter {
	if health == nil {
		health = cache.NewMemo[bool](HealthTTL, nil)
	}
	return &Adapter{
		store:     store,
		health:    health,
		publicURL: publicURL,
		logger:    logger,
		metrics:   m,
	}
}

// IsReachable probes the store unless a result is still memoized. Failed
// probes are kept for UnhealthyTTL only.
func (a *Adapter) IsReachable(ctx context.Context) bool {
	if ok, hit := a.health.Get(); hit {
		return ok
	}

	if err := a.store.Ping(ctx); err != nil {
		a.logger.Warn("Object store unreachable", "error", err)
		a.metrics.StoreProbes.WithLabelValues("unreachable").Inc()
		a.health.SetFor(false, UnhealthyTTL)
		return false
	}
	a.metrics.StoreProbes.WithLabelValues("ok").Inc()
	a.health.Set(true)
	return true
}

// Upload writes data under a new key and returns its public URL. Stored
// objects are immutable: an existing key fails with ErrConflict. Any other
// failed write drops the memoized probe so the next request re-checks the
// store.
func (a *Adapter) Upload(ctx context.Context, data []byte, key, contentType, ownerID string) (string, error) {
	if !a.IsReachable(ctx) {
		a.metrics.Uploads.WithLabelValues("unavailable").Inc()
		return "", apperr.ErrStoreUnavailable
	}

	err := a.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{
		ContentType: contentType,
		IfAbsent:    true,
		Metadata: map[string]string{
			"userId":     ownerID,
			"uploadedAt": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if errors.Is(err, apperr.ErrConflict) {
		a.metrics.Uploads.WithLabelValues("conflict").Inc()
		return "", fmt.Errorf("object %s already exists: %w", key, apperr.ErrConflict)
	}
	if err != nil {
		a.health.Invalidate()
		a.metrics.Uploads.WithLabelValues("failed").Inc()
		a.logger.Error("Object upload failed", "key", key, "error", err)
		return "", fmt.Errorf("upload %s: %w: %w", key, apperr.ErrStoreWriteFailed, err)
	}

	a.metrics.Uploads.WithLabelValues("ok").Inc()
	a.metrics.UploadBytes.Add(float64(len(data)))
	return a.PublicURL(key), nil
}

// Open reads a stored object.
func (a *Adapter) Open(ctx context.Context, key string) (*Object, error) {
	return a.store.GetObject(ctx, key)
}

// Delete removes a stored object. Missing objects are not an error.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.store.DeleteObject(ctx, key); err != nil {
		a.health.Invalidate()
		return fmt.Errorf("delete %s: %w: %w", key, apperr.ErrStoreUnavailable, err)
	}
	return nil
}

func (a *Adapter) PublicURL(key string) string {
	return a.publicURL + "/" + key
}
