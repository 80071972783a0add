package httpapi

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// uploadResponse mirrors the shape chat clients expect from the media
// endpoint.
type uploadResponse struct {
	Success   bool   `json:"success"`
	FilePath  string `json:"filePath"`
	PublicURL string `json:"publicUrl"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
}

// Upload stores a multipart file in object storage under a time-prefixed
// path and returns its public URL.
func (s *Server) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file field is required"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not read file"})
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not read file"})
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := filepath.Base(fh.Filename)
	path := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), name)

	url, err := s.be.Upload(c.Context(), s.cfg.Storage.Bucket, path, data, contentType)
	if err != nil {
		if errors.Is(err, backend.ErrNoObjectStore) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Object storage is not configured"})
		}
		s.logger.Error("upload failed", zap.Error(err), zap.String("path", path))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Upload failed"})
	}

	return c.JSON(uploadResponse{
		Success:   true,
		FilePath:  path,
		PublicURL: url,
		Name:      name,
		Type:      contentType,
		Size:      int64(len(data)),
	})
}
