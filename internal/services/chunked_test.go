package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anonhost/internal/apperr"
	"anonhost/internal/models"
	"anonhost/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunkFixture(t *testing.T) (*uploadFixture, *storage.FilesystemStore, *ChunkedUploadService) {
	t.Helper()
	f := newUploadFixture(t)
	chunks, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	return f, chunks, NewChunkedUploadService(chunks, f.upload, testLogger())
}

func putChunks(t *testing.T, svc *ChunkedUploadService, owner Identity, fileID string, parts [][]byte) *ChunkStatus {
	t.Helper()
	var status *ChunkStatus
	for i, p := range parts {
		var err error
		status, err = svc.PutChunk(context.Background(), owner, ChunkInput{
			FileID:      fileID,
			Index:       i,
			TotalChunks: len(parts),
			Body:        bytes.NewReader(p),
		})
		require.NoError(t, err)
	}
	return status
}

func TestChunkedUploadService_PutChunk(t *testing.T) {
	f, chunks, svc := newChunkFixture(t)
	user := createUser(t, f.db, "alice@example.com")
	owner := Identity{UserID: user.ID}
	ctx := context.Background()

	t.Run("Progress", func(t *testing.T) {
		status, err := svc.PutChunk(ctx, owner, ChunkInput{FileID: "up1", Index: 2, TotalChunks: 3, Body: strings.NewReader("c")})
		require.NoError(t, err)
		assert.Equal(t, &ChunkStatus{Message: "Chunk uploaded", UploadedChunks: 1, TotalChunks: 3}, status)

		// Re-sending a chunk does not count twice.
		status, err = svc.PutChunk(ctx, owner, ChunkInput{FileID: "up1", Index: 2, TotalChunks: 3, Body: strings.NewReader("c")})
		require.NoError(t, err)
		assert.Equal(t, 1, status.UploadedChunks)

		status = putChunks(t, svc, owner, "up1", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
		assert.True(t, status.AllChunksUploaded)
		assert.Equal(t, 3, status.UploadedChunks)
	})

	t.Run("Users Are Isolated", func(t *testing.T) {
		status, err := svc.PutChunk(ctx, Identity{UserID: owner.UserID + 1}, ChunkInput{FileID: "up1", Index: 0, TotalChunks: 3, Body: strings.NewReader("x")})
		require.NoError(t, err)
		assert.Equal(t, 1, status.UploadedChunks)
	})

	t.Run("Validation", func(t *testing.T) {
		cases := []ChunkInput{
			{FileID: "", Index: 0, TotalChunks: 1, Body: strings.NewReader("x")},
			{FileID: "../up", Index: 0, TotalChunks: 1, Body: strings.NewReader("x")},
			{FileID: "up", Index: 1, TotalChunks: 1, Body: strings.NewReader("x")},
			{FileID: "up", Index: -1, TotalChunks: 1, Body: strings.NewReader("x")},
			{FileID: "up", Index: 0, TotalChunks: 0, Body: strings.NewReader("x")},
			{FileID: "up", Index: 0, TotalChunks: maxChunks + 1, Body: strings.NewReader("x")},
			{FileID: "up", Index: 0, TotalChunks: 1},
		}
		for _, in := range cases {
			_, err := svc.PutChunk(ctx, owner, in)
			assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
		}
		names, err := chunks.List(ctx, chunkDir(owner, "up"))
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestChunkedUploadService_Reassemble(t *testing.T) {
	f, chunks, svc := newChunkFixture(t)
	user := createUser(t, f.db, "alice@example.com")
	owner := Identity{UserID: user.ID}
	ctx := context.Background()
	data := pngBytes(t, 5, 3)
	third := len(data) / 3
	parts := [][]byte{data[:third], data[third : 2*third], data[2*third:]}

	t.Run("Joins Chunks In Order", func(t *testing.T) {
		putChunks(t, svc, owner, "img", parts)

		res, err := svc.Reassemble(ctx, owner, ReassembleInput{FileID: "img", Filename: "pic.png", TotalChunks: 3, TotalSize: int64(len(data))})
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), res.Size)
		require.NotNil(t, res.Width)
		assert.Equal(t, 5, *res.Width)

		var m models.Media
		require.NoError(t, f.db.First(&m, "id = ?", res.ID).Error)
		stored, err := os.ReadFile(filepath.Join(f.fs.Root(), filepath.FromSlash(m.StorageKey)))
		require.NoError(t, err)
		assert.Equal(t, data, stored)

		_, err = os.Stat(filepath.Join(chunks.Root(), filepath.FromSlash(chunkDir(owner, "img"))))
		assert.True(t, os.IsNotExist(err), "chunks are removed after upload")
	})

	t.Run("Missing Chunk", func(t *testing.T) {
		putChunks(t, svc, owner, "gap", parts[:2])
		_, err := svc.Reassemble(ctx, owner, ReassembleInput{FileID: "gap", Filename: "pic.png", TotalChunks: 3, TotalSize: int64(len(data))})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, err.Error(), "missing chunk 2")
	})

	t.Run("Over Limit Before Reading", func(t *testing.T) {
		putChunks(t, svc, owner, "huge", parts)
		_, err := svc.Reassemble(ctx, owner, ReassembleInput{FileID: "huge", Filename: "pic.png", TotalChunks: 3, TotalSize: FreeFileLimit + 1})
		assert.ErrorIs(t, err, apperr.ErrTooLarge)

		// Premium users may send it.
		_, err = svc.Reassemble(ctx, Identity{UserID: owner.UserID, Premium: true}, ReassembleInput{FileID: "huge", Filename: "pic.png", TotalChunks: 3, TotalSize: FreeFileLimit + 1})
		assert.NoError(t, err)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := svc.Reassemble(ctx, owner, ReassembleInput{FileID: "img", TotalChunks: 1, TotalSize: 1})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = svc.Reassemble(ctx, owner, ReassembleInput{FileID: "img", Filename: "a.png", TotalChunks: 1})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestChunkedUploadService_StartReaper(t *testing.T) {
	f, chunks, svc := newChunkFixture(t)
	owner := Identity{UserID: createUser(t, f.db, "alice@example.com").ID}
	putChunks(t, svc, owner, "stale", [][]byte{[]byte("a")})

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.StartReaper(ctx, 10*time.Millisecond, ChunkMaxAge)

	assert.Eventually(t, func() bool {
		names, err := chunks.List(context.Background(), chunkDir(owner, "stale"))
		return err == nil && len(names) == 0
	}, time.Second, 10*time.Millisecond)
}
