package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/signed-upload/pkg/signedupload/storage"
	"github.com/tendant/signed-upload/pkg/signedupload/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()
	testKey := "test/a.png"
	testData := "Hello, World! This is test data."

	t.Run("Upload", func(t *testing.T) {
		err := backend.Upload(ctx, testKey, strings.NewReader(testData))
		assert.NoError(t, err)
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "application/octet-stream", meta.ContentType)
		assert.NotEmpty(t, meta.ETag)
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
	})

	t.Run("UploadWithParams", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader(testData), storage.UploadParams{
			ObjectKey: "test/b.txt",
			MimeType:  "text/plain",
		})
		require.NoError(t, err)

		meta, err := backend.GetObjectMeta(ctx, "test/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "text/plain", meta.ContentType)
	})

	t.Run("Move", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "test/a.png.upload-1", strings.NewReader("replacement")))
		require.NoError(t, backend.Move(ctx, "test/a.png.upload-1", testKey))

		_, err := backend.GetObjectMeta(ctx, "test/a.png.upload-1")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)

		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, int64(len("replacement")), meta.Size)

		err = backend.Move(ctx, "missing", testKey)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))

		_, err := backend.GetObjectMeta(ctx, testKey)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)

		err = backend.Delete(ctx, testKey)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		_, err := backend.Download(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}
