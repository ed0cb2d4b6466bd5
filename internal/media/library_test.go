package media

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

func TestLibraryStoreDerivesMetadata(t *testing.T) {
	ctx := context.Background()
	lib, _ := mustLibrary(t)

	m := &model.Media{Filename: "shirt-front.png", Alt: "front"}
	id, err := lib.Store(ctx, m, pngBytes)
	require.NoError(t, err)

	got, err := lib.Media(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Hash(pngBytes), got.Hash)
	assert.Equal(t, "image/png", got.MimeType)
	assert.Equal(t, "shirt-front", got.Title)
	assert.Equal(t, int64(len(pngBytes)), got.Size)
	assert.True(t, strings.HasSuffix(got.StorageKey, Hash(pngBytes)+".png"), "key %q", got.StorageKey)
	assert.True(t, strings.HasPrefix(got.URL, "file://"), "url %q", got.URL)

	rc, err := lib.Open(ctx, id)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	found, err := lib.FindByHash(ctx, got.Hash)
	require.NoError(t, err)
	assert.Equal(t, id, found)
}

func TestLibraryStoreKeepsGivenHash(t *testing.T) {
	lib, _ := mustLibrary(t)

	id, err := lib.Store(context.Background(), &model.Media{Hash: "exported-hash"}, gifBytes)
	require.NoError(t, err)

	got, err := lib.Media(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "exported-hash", got.Hash)
	assert.Equal(t, "exported-hash.gif", got.Filename)
}

func TestLibraryOpenWithoutBlob(t *testing.T) {
	ctx := context.Background()
	lib, conn := mustLibrary(t)

	id, err := db.CreateMedia(conn, &model.Media{URL: "https://cdn.example.com/a.png", Filename: "a.png"})
	require.NoError(t, err)

	_, err = lib.Open(ctx, id)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, err = lib.Open(ctx, id+100)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = lib.Store(ctx, &model.Media{}, nil)
	assert.Error(t, err)
}
