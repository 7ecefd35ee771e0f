package services

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/metrics"
	"anonhost/internal/storage"
)

const defaultContentType = "application/octet-stream"

// DeliveryService reads stored objects for public delivery.
type DeliveryService struct {
	store   *storage.Adapter
	metrics *metrics.Metrics
}

func NewDeliveryService(store *storage.Adapter, m *metrics.Metrics) *DeliveryService {
	return &DeliveryService{store: store, metrics: m}
}

// Serve opens the object at requestedPath. Paths that escape the storage root
// fail with ErrForbidden, missing objects with ErrNotFound. The caller closes
// the returned body.
func (s *DeliveryService) Serve(ctx context.Context, requestedPath string) (*storage.Object, error) {
	key, err := storage.CleanKey(strings.TrimPrefix(requestedPath, "/"))
	if err != nil {
		s.metrics.Deliveries.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	obj, err := s.store.Open(ctx, key)
	if err != nil {
		s.metrics.Deliveries.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	obj.ContentType = ContentTypeFor(key)
	s.metrics.Deliveries.WithLabelValues("ok").Inc()
	return obj, nil
}

// ContentTypeFor picks a content type from the key's extension.
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	return defaultContentType
}

// Extensions the system mime table often lacks.
var extensionTypes = map[string]string{
	".webp": "image/webp",
	".avif": "image/avif",
	".heic": "image/heic",
	".mkv":  "video/x-matroska",
	".flac": "audio/flac",
	".md":   "text/markdown",
}

func resultLabel(err error) string {
	switch apperr.Status(err) {
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	}
	return "error"
}
