package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dumper persists raw upstream responses for offline diagnosis
type Dumper interface {
	Dump(site, ext string, body []byte) (string, error)
}

// ResponseDumper writes raw responses below a directory
type ResponseDumper struct {
	dir string
	now func() time.Time
}

// NewResponseDumper creates a dumper writing into dir. An empty dir disables dumping.
func NewResponseDumper(dir string) *ResponseDumper {
	return &ResponseDumper{
		dir: dir,
		now: time.Now,
	}
}

// Dump writes body to <dir>/<site>_<timestamp>.<ext> and returns the file path
func (d *ResponseDumper) Dump(site, ext string, body []byte) (string, error) {
	if d == nil || d.dir == "" {
		return "", nil
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", fileSafe(site), d.now().Format("20060102T150405.000"), ext)
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dump: %w", err)
	}
	return path, nil
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
