package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadDir stores uploaded files under a single directory. Every file gets
// a random prefix so two uploads with the same name never collide.
type UploadDir struct {
	dir string
}

func NewUploadDir(dir string) (*UploadDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &UploadDir{dir: dir}, nil
}

// Save writes content to "<dir>/<hex uuid>_<name>" and returns that path.
// Path separators in filename are replaced with underscores.
func (u *UploadDir) Save(filename string, content []byte) (string, error) {
	safe := strings.NewReplacer("/", "_", `\`, "_").Replace(filename)
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + safe
	path := filepath.Join(u.dir, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}
