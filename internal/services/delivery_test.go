package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"anonhost/internal/apperr"
	"anonhost/internal/metrics"
	"anonhost/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryService_Serve(t *testing.T) {
	fs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	adapter := storage.NewAdapter(fs, nil, "http://localhost/uploads", testLogger(), metrics.New(nil))
	service := NewDeliveryService(adapter, metrics.New(nil))
	ctx := context.Background()

	content := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), "abc123.png"), content, 0o644))

	t.Run("Existing File", func(t *testing.T) {
		obj, err := service.Serve(ctx, "/abc123.png")
		require.NoError(t, err)
		defer obj.Body.Close()

		got, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, content, got)
		assert.Equal(t, "image/png", obj.ContentType)
		assert.Equal(t, int64(len(content)), obj.Size)
	})

	t.Run("Traversal", func(t *testing.T) {
		for _, p := range []string{"/../../etc/passwd", "../x", "a/../../x", "a\x00b"} {
			_, err := service.Serve(ctx, p)
			assert.ErrorIs(t, err, apperr.ErrForbidden, p)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := service.Serve(ctx, "/nope.png")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = service.Serve(ctx, "/")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/webp", ContentTypeFor("a/b.WEBP"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.zzzunknown"))
}
