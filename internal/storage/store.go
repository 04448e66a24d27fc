package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageSize caps every uploaded image at 2MB.
const MaxImageSize = 2 << 20

const (
	bookPrefix   = "books"
	avatarPrefix = "avatar_images"
	urlPrefix    = "/storage/"
)

// Store writes uploaded images under Root and hands out public URLs under
// BaseURL + /storage/. Deletion goes the other way: the disk path is
// re-derived from the public URL.
type Store struct {
	Root    string
	BaseURL string
}

func New(root, baseURL string) (*Store, error) {
	for _, dir := range []string{bookPrefix, avatarPrefix} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("ensure storage dir: %w", err)
		}
	}
	return &Store{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// SaveBookImage stores a book image under a random name and returns its
// public URL.
func (s *Store) SaveBookImage(r io.Reader, name string) (string, error) {
	rel := filepath.Join(bookPrefix, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	if err := s.write(rel, r); err != nil {
		return "", err
	}
	return s.publicURL(rel), nil
}

// SaveAvatar keeps the original file name, prefixed with the upload time.
func (s *Store) SaveAvatar(r io.Reader, name string) (string, error) {
	rel := filepath.Join(avatarPrefix, fmt.Sprintf("%d_%s", time.Now().Unix(), filepath.Base(name)))
	if err := s.write(rel, r); err != nil {
		return "", err
	}
	return s.publicURL(rel), nil
}

func (s *Store) write(rel string, r io.Reader) error {
	f, err := os.Create(filepath.Join(s.Root, rel))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Delete removes the stored file behind a public URL. A URL outside this
// store or a file already gone is not an error: the index entry must go
// regardless.
func (s *Store) Delete(url string) error {
	prefix := s.BaseURL + urlPrefix
	if !strings.HasPrefix(url, prefix) {
		return nil
	}

	rel := filepath.Clean(strings.TrimPrefix(url, prefix))
	if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return nil
	}

	if err := os.Remove(filepath.Join(s.Root, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *Store) publicURL(rel string) string {
	return s.BaseURL + urlPrefix + filepath.ToSlash(rel)
}

// CheckImage validates an upload before anything is written: jpeg, jpg,
// png or gif, at most 2MB.
func CheckImage(fh *multipart.FileHeader) error {
	if fh.Size > MaxImageSize {
		return fmt.Errorf("the image size must not exceed 2MB")
	}
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".jpeg", ".jpg", ".png", ".gif":
		return nil
	}
	return fmt.Errorf("the image must be a file of type: jpeg, png, jpg, gif")
}
