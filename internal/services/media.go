package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/models"
	"anonhost/pkg/utils"

	"gorm.io/gorm"
)

// ObjectRemover deletes stored objects by key.
type ObjectRemover interface {
	Delete(ctx context.Context, key string) error
}

type MediaInput struct {
	OwnerID     uint
	URL         string
	StorageKey  string
	Filename    string
	ContentType string
	Type        string
	Size        int64
	Width       *int
	Height      *int
	Public      bool
}

type ListMediaQuery struct {
	Page  int
	Limit int
	Sort  string // createdAt, filename or size
	Order string // asc or desc
}

type MediaPage struct {
	Items      []models.Media `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
	TotalSize  int64          `json:"total_size"`
}

var mediaSortColumns = map[string]string{
	"createdAt": "created_at",
	"filename":  "filename",
	"size":      "size",
}

const (
	defaultMediaPageSize = 20
	maxMediaPageSize     = 100
)

type MediaService struct {
	db           *gorm.DB
	objects      ObjectRemover
	logger       *slog.Logger
	auditService *AuditService
}

func NewMediaService(db *gorm.DB, objects ObjectRemover, logger *slog.Logger, auditService *AuditService) *MediaService {
	return &MediaService{
		db:           db,
		objects:      objects,
		logger:       logger,
		auditService: auditService,
	}
}

func (s *MediaService) Record(ctx context.Context, in MediaInput) (*models.Media, error) {
	m := models.Media{
		ID:          utils.MustGenerateID(),
		UserID:      in.OwnerID,
		URL:         in.URL,
		StorageKey:  in.StorageKey,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Type:        in.Type,
		Size:        in.Size,
		Width:       in.Width,
		Height:      in.Height,
		Public:      in.Public,
		Status:      models.MediaActive,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("record media: %w", err)
	}
	return &m, nil
}

// Get returns an active media row. Tombstoned rows are reported as missing.
func (s *MediaService) Get(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	err := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, models.MediaActive).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("media %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load media: %w", err)
	}
	return &m, nil
}

func (s *MediaService) ListByOwner(ctx context.Context, ownerID uint, q ListMediaQuery) (*MediaPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultMediaPageSize
	}
	if q.Limit > maxMediaPageSize {
		q.Limit = maxMediaPageSize
	}
	column, ok := mediaSortColumns[q.Sort]
	if !ok {
		column = "created_at"
	}
	order := "desc"
	if q.Order == "asc" {
		order = "asc"
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Media{}).
			Where("user_id = ? AND status = ?", ownerID, models.MediaActive)
	}

	page := &MediaPage{Page: q.Page, Limit: q.Limit, Items: []models.Media{}}
	var totals struct {
		Count int64
		Size  int64
	}
	if err := base().Select("COUNT(*) AS count, COALESCE(SUM(size), 0) AS size").Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("media totals: %w", err)
	}
	page.Total = totals.Count
	page.TotalSize = totals.Size
	page.TotalPages = int((totals.Count + int64(q.Limit) - 1) / int64(q.Limit))

	err := base().
		Order(column + " " + order).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&page.Items).Error
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return page, nil
}

// UsedBytes is the total size of the owner's active media.
func (s *MediaService) UsedBytes(ctx context.Context, ownerID uint) (int64, error) {
	var used int64
	err := s.db.WithContext(ctx).Model(&models.Media{}).
		Where("user_id = ? AND status = ?", ownerID, models.MediaActive).
		Select("COALESCE(SUM(size), 0)").Scan(&used).Error
	if err != nil {
		return 0, fmt.Errorf("sum media size: %w", err)
	}
	return used, nil
}

// Delete removes a media item in two phases: the row is tombstoned, the
// stored object is deleted, then the row is removed. If the object delete
// fails the tombstone stays behind for the reaper.
func (s *MediaService) Delete(ctx context.Context, requester Identity, id, ip string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.UserID != requester.UserID && !requester.Admin {
		return fmt.Errorf("media %s: %w", id, apperr.ErrForbidden)
	}

	res := s.db.WithContext(ctx).Model(&models.Media{}).
		Where("id = ? AND status = ?", id, models.MediaActive).
		Update("status", models.MediaDeleting)
	if res.Error != nil {
		return fmt.Errorf("tombstone media: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("media %s: %w", id, apperr.ErrNotFound)
	}

	if err := s.objects.Delete(ctx, m.StorageKey); err != nil {
		s.logger.Warn("Object delete failed, leaving tombstone", "media_id", id, "error", err)
		return fmt.Errorf("delete media %s: %w", id, err)
	}

	if err := s.db.WithContext(ctx).Delete(&models.Media{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete media row: %w", err)
	}

	s.auditService.LogAction(&requester.UserID, ActionDeleteMedia, id, map[string]interface{}{
		"owner_id": m.UserID,
		"key":      m.StorageKey,
	}, ip)
	return nil
}

// Reap finishes deletes whose object removal failed earlier. It returns the
// number of rows removed.
func (s *MediaService) Reap(ctx context.Context) (int, error) {
	var pending []models.Media
	err := s.db.WithContext(ctx).Where("status = ?", models.MediaDeleting).Limit(100).Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("load tombstones: %w", err)
	}

	reaped := 0
	for _, m := range pending {
		if err := s.objects.Delete(ctx, m.StorageKey); err != nil {
			s.logger.Warn("Reaper could not delete object", "media_id", m.ID, "error", err)
			continue
		}
		if err := s.db.WithContext(ctx).Delete(&models.Media{}, "id = ?", m.ID).Error; err != nil {
			s.logger.Error("Reaper could not delete row", "media_id", m.ID, "error", err)
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (s *MediaService) StartReaper(ctx context.Context, interval time.Duration) {
	s.logger.Info("Media reaper starting", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.Reap(ctx)
			if err != nil {
				s.logger.Error("Media reap failed", "error", err)
			} else if n > 0 {
				s.logger.Info("Reaped tombstoned media", "count", n)
			}
		case <-ctx.Done():
			s.logger.Info("Media reaper stopping")
			return
		}
	}
}
