package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"

	"anonhost/internal/apperr"
	"anonhost/internal/storage"
	"anonhost/pkg/utils"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	MiB = 1 << 20
	GiB = 1 << 30

	FreeFileLimit    = 100 * MiB
	PremiumFileLimit = 500 * MiB
	FreeQuota        = 1 * GiB
)

// Executable formats are refused regardless of the declared content type.
var blockedTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-elf",
	"application/x-executable",
	"application/x-sharedlib",
	"application/x-mach-binary",
	"application/x-msi",
	"application/vnd.android.package-archive",
	"text/x-shellscript",
}

var (
	segmentPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)
)

type UploadInput struct {
	Body        io.Reader
	Filename    string
	ContentType string
	IPAddress   string
}

// StorageUploadInput is a raw write into {userId}[/{type}s]/{fileId}{ext}.
// Requester is set when the request carried a credential.
type StorageUploadInput struct {
	Data      []byte
	FileID    string
	Filename  string
	UserID    string
	Category  string
	Requester *Identity
}

type StorageUploadResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Type     string `json:"type"`
}

type UploadService struct {
	store           *storage.Adapter
	mediaService    *MediaService
	settingsService *SettingsService
	auditService    *AuditService
	logger          *slog.Logger
}

func NewUploadService(store *storage.Adapter, mediaService *MediaService, settingsService *SettingsService, auditService *AuditService, logger *slog.Logger) *UploadService {
	return &UploadService{
		store:           store,
		mediaService:    mediaService,
		settingsService: settingsService,
		auditService:    auditService,
		logger:          logger,
	}
}

// FileLimit is the largest single upload allowed for the identity, or -1 when
// unlimited.
func FileLimit(id Identity) int64 {
	switch {
	case id.Admin:
		return -1
	case id.Premium:
		return PremiumFileLimit
	default:
		return FreeFileLimit
	}
}

// Upload stores a user file and records it as media.
func (s *UploadService) Upload(ctx context.Context, owner Identity, in UploadInput) (*MediaUploadResult, error) {
	data, err := readLimited(in.Body, FileLimit(owner))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty: %w", apperr.ErrValidation)
	}

	if !owner.Admin && !owner.Premium {
		used, err := s.mediaService.UsedBytes(ctx, owner.UserID)
		if err != nil {
			return nil, err
		}
		if used+int64(len(data)) > FreeQuota {
			return nil, fmt.Errorf("storage quota exceeded: %w", apperr.ErrTooLarge)
		}
	}

	sniffed := mimetype.Detect(data)
	if isBlocked(sniffed) {
		return nil, fmt.Errorf("file type %s is not allowed: %w", sniffed.String(), apperr.ErrValidation)
	}

	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed.String()
	}

	ext := strings.ToLower(path.Ext(path.Base(in.Filename)))
	if !extensionPattern.MatchString(ext) {
		ext = sniffed.Extension()
	}

	mediaType := classify(contentType)
	var width, height *int
	if mediaType == "image" {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = &cfg.Width, &cfg.Height
		}
	}

	public := false
	if mediaType == "image" && s.settingsService != nil {
		settings, err := s.settingsService.Get(ctx, owner.UserID)
		if err != nil {
			return nil, err
		}
		public = settings.MakeImagesPublic
	}

	key := storage.DeriveKey(strconv.FormatUint(uint64(owner.UserID), 10), "", utils.GenerateObjectID(), ext)
	url, err := s.store.Upload(ctx, data, key, contentType, strconv.FormatUint(uint64(owner.UserID), 10))
	if err != nil {
		return nil, err
	}

	media, err := s.mediaService.Record(ctx, MediaInput{
		OwnerID:     owner.UserID,
		URL:         url,
		StorageKey:  key,
		Filename:    path.Base(in.Filename),
		ContentType: contentType,
		Type:        mediaType,
		Size:        int64(len(data)),
		Width:       width,
		Height:      height,
		Public:      public,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.logger.Error("Failed to remove orphaned object", "key", key, "error", derr)
		}
		return nil, err
	}

	s.auditService.LogAction(&owner.UserID, ActionUpload, media.ID, map[string]interface{}{
		"size": media.Size,
		"type": contentType,
	}, in.IPAddress)

	return &MediaUploadResult{
		ID:       media.ID,
		URL:      url,
		Filename: media.Filename,
		Size:     media.Size,
		Type:     mediaType,
		Width:    width,
		Height:   height,
	}, nil
}

type MediaUploadResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

// StoreRaw writes bytes under a caller-chosen key without recording media.
// Keys are create-only, so existing objects cannot be replaced. A signed-in
// requester may only write into their own namespace unless they are an admin.
func (s *UploadService) StoreRaw(ctx context.Context, in StorageUploadInput) (*StorageUploadResult, error) {
	if len(in.Data) == 0 || in.FileID == "" || in.Filename == "" || in.UserID == "" {
		return nil, fmt.Errorf("missing required fields: %w", apperr.ErrValidation)
	}
	if r := in.Requester; r != nil && !r.Admin && in.UserID != strconv.FormatUint(uint64(r.UserID), 10) {
		return nil, fmt.Errorf("cannot write into another user's files: %w", apperr.ErrForbidden)
	}
	for _, seg := range []string{in.FileID, in.UserID} {
		if !segmentPattern.MatchString(seg) {
			return nil, fmt.Errorf("invalid path segment %q: %w", seg, apperr.ErrValidation)
		}
	}
	if in.Category != "" && !segmentPattern.MatchString(in.Category) {
		return nil, fmt.Errorf("invalid type %q: %w", in.Category, apperr.ErrValidation)
	}

	ext := path.Ext(path.Base(in.Filename))
	if ext != "" && !extensionPattern.MatchString(ext) {
		return nil, fmt.Errorf("invalid extension %q: %w", ext, apperr.ErrValidation)
	}

	contentType := mimetype.Detect(in.Data).String()
	key := storage.DeriveKey(in.UserID, in.Category, in.FileID, ext)
	url, err := s.store.Upload(ctx, in.Data, key, contentType, in.UserID)
	if err != nil {
		return nil, err
	}

	return &StorageUploadResult{
		URL:      url,
		Filename: in.Filename,
		Size:     len(in.Data),
		Type:     contentType,
	}, nil
}

// readLimited reads all of r, failing with ErrTooLarge past limit bytes.
// A negative limit reads without bound.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes: %w", limit, apperr.ErrTooLarge)
	}
	return data, nil
}

func isBlocked(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), blockedTypes...) {
			return true
		}
	}
	return false
}

func classify(contentType string) string {
	major, _, _ := strings.Cut(contentType, "/")
	switch major {
	case "image", "video", "audio", "text":
		return major
	}
	switch {
	case contentType == "application/pdf",
		strings.Contains(contentType, "document"),
		strings.Contains(contentType, "msword"),
		strings.Contains(contentType, "spreadsheet"),
		strings.Contains(contentType, "presentation"):
		return "document"
	}
	return "other"
}
