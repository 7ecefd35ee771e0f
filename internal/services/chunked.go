package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/storage"
)

const (
	MaxChunkSize = 100 * MiB
	maxChunks    = 10000
	// ChunkMaxAge is how long an unfinished upload's chunks are kept.
	ChunkMaxAge = 24 * time.Hour
)

type ChunkInput struct {
	FileID      string
	Index       int
	TotalChunks int
	Body        io.Reader
}

type ChunkStatus struct {
	Message           string `json:"message"`
	AllChunksUploaded bool   `json:"allChunksUploaded"`
	UploadedChunks    int    `json:"uploadedChunks"`
	TotalChunks       int    `json:"totalChunks"`
}

type ReassembleInput struct {
	FileID      string
	Filename    string
	TotalChunks int
	TotalSize   int64
	IPAddress   string
}

// ChunkedUploadService stages large uploads as numbered chunks on local disk
// and feeds the joined file through the regular upload pipeline.
type ChunkedUploadService struct {
	chunks *storage.FilesystemStore
	upload *UploadService
	logger *slog.Logger
	now    func() time.Time
}

func NewChunkedUploadService(chunks *storage.FilesystemStore, upload *UploadService, logger *slog.Logger) *ChunkedUploadService {
	return &ChunkedUploadService{
		chunks: chunks,
		upload: upload,
		logger: logger,
		now:    time.Now,
	}
}

// Chunks of different users never share a directory.
func chunkDir(owner Identity, fileID string) string {
	return path.Join(strconv.FormatUint(uint64(owner.UserID), 10), fileID)
}

func validateChunkUpload(fileID string, totalChunks int) error {
	if fileID == "" || len(fileID) > 64 || !segmentPattern.MatchString(fileID) {
		return fmt.Errorf("invalid fileId: %w", apperr.ErrValidation)
	}
	if totalChunks < 1 || totalChunks > maxChunks {
		return fmt.Errorf("totalChunks must be between 1 and %d: %w", maxChunks, apperr.ErrValidation)
	}
	return nil
}

// PutChunk stores one chunk. Re-sending a chunk replaces it.
func (s *ChunkedUploadService) PutChunk(ctx context.Context, owner Identity, in ChunkInput) (*ChunkStatus, error) {
	if err := validateChunkUpload(in.FileID, in.TotalChunks); err != nil {
		return nil, err
	}
	if in.Index < 0 || in.Index >= in.TotalChunks {
		return nil, fmt.Errorf("chunkIndex out of range: %w", apperr.ErrValidation)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("chunk is required: %w", apperr.ErrValidation)
	}

	dir := chunkDir(owner, in.FileID)
	body := &limitedChunk{r: io.LimitReader(in.Body, MaxChunkSize+1)}
	key := path.Join(dir, strconv.Itoa(in.Index))
	if err := s.chunks.PutObject(ctx, key, body, -1, storage.PutOptions{}); err != nil {
		return nil, fmt.Errorf("store chunk %d: %w", in.Index, err)
	}
	if body.n > MaxChunkSize {
		_ = s.chunks.DeleteObject(ctx, key)
		return nil, fmt.Errorf("chunk exceeds %d bytes: %w", MaxChunkSize, apperr.ErrTooLarge)
	}

	uploaded, err := s.countChunks(ctx, dir, in.TotalChunks)
	if err != nil {
		return nil, err
	}
	return &ChunkStatus{
		Message:           "Chunk uploaded",
		AllChunksUploaded: uploaded == in.TotalChunks,
		UploadedChunks:    uploaded,
		TotalChunks:       in.TotalChunks,
	}, nil
}

func (s *ChunkedUploadService) countChunks(ctx context.Context, dir string, total int) (int, error) {
	names, err := s.chunks.List(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	count := 0
	for _, name := range names {
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < total {
			count++
		}
	}
	return count, nil
}

// Reassemble joins all chunks in order and uploads the result as media. The
// chunks are discarded once the upload succeeds or is rejected outright;
// they are kept when the store is unavailable so the client can retry.
func (s *ChunkedUploadService) Reassemble(ctx context.Context, owner Identity, in ReassembleInput) (*MediaUploadResult, error) {
	if err := validateChunkUpload(in.FileID, in.TotalChunks); err != nil {
		return nil, err
	}
	if in.Filename == "" {
		return nil, fmt.Errorf("fileName is required: %w", apperr.ErrValidation)
	}
	if in.TotalSize <= 0 {
		return nil, fmt.Errorf("totalSize must be positive: %w", apperr.ErrValidation)
	}
	if limit := FileLimit(owner); limit >= 0 && in.TotalSize > limit {
		return nil, fmt.Errorf("file exceeds %d bytes: %w", limit, apperr.ErrTooLarge)
	}

	dir := chunkDir(owner, in.FileID)
	parts := make([]io.Reader, 0, in.TotalChunks)
	var opened []io.Closer
	defer func() {
		for _, c := range opened {
			_ = c.Close()
		}
	}()
	for i := 0; i < in.TotalChunks; i++ {
		obj, err := s.chunks.GetObject(ctx, path.Join(dir, strconv.Itoa(i)))
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("missing chunk %d: %w", i, apperr.ErrValidation)
		}
		if err != nil {
			return nil, fmt.Errorf("open chunk %d: %w", i, err)
		}
		opened = append(opened, obj.Body)
		parts = append(parts, obj.Body)
	}

	res, err := s.upload.Upload(ctx, owner, UploadInput{
		Body:      io.MultiReader(parts...),
		Filename:  in.Filename,
		IPAddress: in.IPAddress,
	})
	if err != nil && !errors.Is(err, apperr.ErrValidation) && !errors.Is(err, apperr.ErrTooLarge) {
		return nil, err
	}
	if derr := s.chunks.DeletePrefix(ctx, dir); derr != nil {
		s.logger.Warn("Failed to remove chunks", "dir", dir, "error", derr)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StartReaper removes chunks of uploads abandoned for longer than maxAge.
func (s *ChunkedUploadService) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.chunks.RemoveOlderThan(s.now().Add(-maxAge)); err != nil {
				s.logger.Error("Chunk sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("Removed abandoned chunks", "count", n)
			}
		}
	}
}

// limitedChunk counts bytes read so oversized chunks can be detected after
// the write.
type limitedChunk struct {
	r io.Reader
	n int64
}

func (l *limitedChunk) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	return n, err
}
