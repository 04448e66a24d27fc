package storage

import (
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	store, err := New(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	return store
}

func TestNew_CreatesPrefixDirs(t *testing.T) {
	root := t.TempDir()
	_, err := New(root, "http://localhost:8080")
	require.NoError(t, err)

	for _, dir := range []string{"books", "avatar_images"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSaveBookImage_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	url, err := store.SaveBookImage(strings.NewReader("image bytes"), "cover.JPG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/storage/books/"))
	// extension is normalized to lowercase
	assert.True(t, strings.HasSuffix(url, ".jpg"))

	rel := strings.TrimPrefix(url, "http://localhost:8080/storage/")
	data, err := os.ReadFile(filepath.Join(store.Root, rel))
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	require.NoError(t, store.Delete(url))
	_, err = os.Stat(filepath.Join(store.Root, rel))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveBookImage_UniqueNames(t *testing.T) {
	store := newTestStore(t)

	a, err := store.SaveBookImage(strings.NewReader("a"), "cover.png")
	require.NoError(t, err)
	b, err := store.SaveBookImage(strings.NewReader("b"), "cover.png")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSaveAvatar_KeepsBaseName(t *testing.T) {
	store := newTestStore(t)

	url, err := store.SaveAvatar(strings.NewReader("avatar bytes"), "../../face.png")
	require.NoError(t, err)
	assert.Contains(t, url, "/storage/avatar_images/")
	assert.True(t, strings.HasSuffix(url, "_face.png"))
}

func TestDelete_IgnoresForeignURLs(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.Delete("https://elsewhere.example.com/storage/books/x.jpg"))
	assert.NoError(t, store.Delete("http://localhost:8080/storage/../etc/passwd"))
	// already-gone file is fine too
	assert.NoError(t, store.Delete("http://localhost:8080/storage/books/missing.jpg"))
}

func TestCheckImage(t *testing.T) {
	ok := &multipart.FileHeader{Filename: "cover.jpeg", Size: 1024}
	assert.NoError(t, CheckImage(ok))

	tooBig := &multipart.FileHeader{Filename: "cover.png", Size: MaxImageSize + 1}
	assert.Error(t, CheckImage(tooBig))

	badType := &multipart.FileHeader{Filename: "cover.pdf", Size: 1024}
	assert.Error(t, CheckImage(badType))
}
