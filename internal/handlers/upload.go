package handlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alumnichat/server/internal/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxFileSize      = 5 * 1024 * 1024 // 5MB
	AllowedImageExts = ".jpg,.jpeg,.png,.gif,.webp"
	AllowedFileExts  = ".pdf,.doc,.docx,.txt,.zip"
)

// UploadHandler stores chat attachments on local disk
type UploadHandler struct {
	dir string
	log *zap.Logger
}

func NewUploadHandler(dir string, log *zap.Logger) *UploadHandler {
	return &UploadHandler{dir: dir, log: log.Named("upload")}
}

// UploadFile stores an attachment and returns the fileData to send with an
// image or file message
func (h *UploadHandler) UploadFile(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, h.log, apperror.Validation("No file uploaded"))
	}

	if file.Size > MaxFileSize {
		return respondError(c, h.log, apperror.Validation(
			fmt.Sprintf("File size exceeds limit of 5MB (uploaded: %.2fMB)", float64(file.Size)/(1024*1024))))
	}

	// Same vocabulary as the message types that carry attachments
	fileType := c.Query("type", "file")
	if fileType != "image" && fileType != "file" {
		return respondError(c, h.log, apperror.Validation("Invalid file type. Must be: image or file"))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !isAllowedExtension(ext, fileType) {
		return respondError(c, h.log, apperror.Validation(
			fmt.Sprintf("File extension %s not allowed for type %s", ext, fileType)))
	}

	uploadPath := filepath.Join(h.dir, fileType+"s")
	if err := os.MkdirAll(uploadPath, 0755); err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to create upload directory", err))
	}

	filename := fmt.Sprintf("%s-%d%s", uuid.New().String(), time.Now().Unix(), ext)
	if err := c.SaveFile(file, filepath.Join(uploadPath, filename)); err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to save file", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"fileUrl":     fmt.Sprintf("/uploads/%ss/%s", fileType, filename),
			"fileName":    filepath.Base(file.Filename),
			"messageType": fileType,
			"size":        file.Size,
		},
	})
}

// isAllowedExtension checks if file extension is allowed for the given type
func isAllowedExtension(ext, fileType string) bool {
	if ext == "" {
		return false
	}
	var allowed string
	switch fileType {
	case "image":
		allowed = AllowedImageExts
	case "file":
		allowed = AllowedFileExts
	default:
		return false
	}
	for _, e := range strings.Split(allowed, ",") {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// GetFile serves uploaded files
func (h *UploadHandler) GetFile(c *fiber.Ctx) error {
	fileType := c.Params("type")
	filename := c.Params("filename")

	if fileType != "images" && fileType != "files" {
		return respondError(c, h.log, apperror.Validation("Invalid file type"))
	}
	if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		return respondError(c, h.log, apperror.Validation("Invalid file name"))
	}

	file, err := os.Open(filepath.Join(h.dir, fileType, filename))
	if os.IsNotExist(err) {
		return respondError(c, h.log, apperror.NotFound("File not found"))
	}
	if err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to open file", err))
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to get file info", err))
	}

	c.Set(fiber.HeaderContentType, getContentType(strings.ToLower(filepath.Ext(filename))))
	c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", fileInfo.Size()))

	// Stream file to client
	if _, err := io.Copy(c.Response().BodyWriter(), file); err != nil {
		return respondError(c, h.log, apperror.Internal("Failed to send file", err))
	}
	return nil
}

// getContentType returns content type based on file extension
func getContentType(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
