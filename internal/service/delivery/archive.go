package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
)

// Archive keeps a decoded copy of every delivered artifact on local disk.
// Errors are logged only; delivery never reports failure to its caller.
type Archive struct {
	basePath string
	logger   *logger.Logger
	now      func() time.Time
}

func NewArchive(basePath string, log *logger.Logger) *Archive {
	return &Archive{
		basePath: basePath,
		logger:   log.Named("archive"),
		now:      time.Now,
	}
}

func (a *Archive) Download(fileBase64, filename, contentType string) {
	if _, err := a.save(fileBase64, filename); err != nil {
		a.logger.Error("failed to archive artifact", "filename", filename, "content_type", contentType, "error", err)
	}
}

func (a *Archive) save(fileBase64, filename string) (string, error) {
	data, err := Decode(fileBase64)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// 时间戳前缀避免同名文件互相覆盖
	name := fmt.Sprintf("%s-%s", a.now().UTC().Format("20060102T150405.000000000"), filepath.Base(filename))
	path := filepath.Join(a.basePath, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	a.logger.Info("archived artifact", "path", path, "size", len(data))
	return path, nil
}
