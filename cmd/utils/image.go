package utils

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxImageSize = 10 << 20 // 10 MB
	PostImageDir = "posts"
)

var ErrInvalidImage = errors.New("upload a valid image: the file you uploaded was either not an image or a corrupted image")

// ImageStore keeps uploaded post images under Root.
type ImageStore struct {
	Root string
}

func NewImageStore(root string) *ImageStore {
	return &ImageStore{Root: root}
}

// Validate checks that the upload really is a GIF, JPEG or PNG image and
// rewinds it for saving.
func (s *ImageStore) Validate(file multipart.File, header *multipart.FileHeader) error {
	if header.Size > MaxImageSize {
		return fmt.Errorf("file size exceeds maximum limit of %d MB", MaxImageSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isValidImageType(ext) {
		return ErrInvalidImage
	}

	if _, _, err := image.DecodeConfig(file); err != nil {
		return ErrInvalidImage
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding upload: %w", err)
	}
	return nil
}

// Save writes a validated upload and returns its path relative to Root.
func (s *ImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	dir := filepath.Join(s.Root, PostImageDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		strings.ToLower(filepath.Ext(header.Filename)),
	)

	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return PostImageDir + "/" + filename, nil
}

func isValidImageType(ext string) bool {
	validTypes := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
	return validTypes[ext]
}

// Delete removes a stored image; a missing file is not an error.
func (s *ImageStore) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	filePath := filepath.Join(s.Root, PostImageDir, filepath.Base(relPath))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(filePath)
}

// Handler serves the stored media files. Directories are never listed.
func (s *ImageStore) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(s.Root)})
}

// filesOnly hides directories so FileServer answers 404 instead of an index.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
