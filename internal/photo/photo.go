// Package photo stores uploaded student photos on the local filesystem.
package photo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultAllowedExt lists the image extensions accepted when none are configured.
var DefaultAllowedExt = []string{"png", "jpg", "jpeg", "gif", "webp"}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Saver writes photos into a single directory.
type Saver struct {
	dir     string
	allowed map[string]bool
}

// NewSaver creates the upload directory if needed.
func NewSaver(dir string, allowedExt []string) (*Saver, error) {
	if len(allowedExt) == 0 {
		allowedExt = DefaultAllowedExt
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	allowed := make(map[string]bool, len(allowedExt))
	for _, ext := range allowedExt {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = true
	}
	return &Saver{dir: dir, allowed: allowed}, nil
}

// Dir returns the directory photos are stored in.
func (s *Saver) Dir() string {
	return s.dir
}

// Allowed reports whether filename carries an accepted image extension.
func (s *Saver) Allowed(filename string) bool {
	return s.allowed[extension(filename)]
}

// maxNameAttempts bounds the suffixes tried when a photo name is taken.
const maxNameAttempts = 1000

// Save copies r into a new file named after idNumber and the upload time.
// A name already on disk is never reused: later uploads in the same second
// get a numeric suffix. It returns an empty name and no error when the
// extension is not allowed.
func (s *Saver) Save(idNumber, filename string, r io.Reader, now time.Time) (string, error) {
	if !s.Allowed(filename) {
		slog.Info("ignoring photo with disallowed extension", "filename", filename)
		return "", nil
	}
	prefix := unsafeChars.ReplaceAllString(idNumber, "_")
	ext := extension(filename)

	f, name, err := s.create(fmt.Sprintf("%s_%d", prefix, now.Unix()), ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close photo file: %w", err)
	}
	slog.Info("saved photo", "name", name)
	return name, nil
}

// create opens a file that did not exist before, trying base.ext, then
// base_1.ext, base_2.ext and so on.
func (s *Saver) create(base, ext string) (*os.File, string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		name := SafeName(candidate + "." + ext)
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create photo file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create photo file: no free name for %s.%s", base, ext)
}

// Remove deletes a stored photo. Missing files are not an error.
func (s *Saver) Remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, SafeName(name)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SafeName reduces name to characters that are safe in a path segment.
func SafeName(name string) string {
	safe := unsafeChars.ReplaceAllString(filepath.Base(name), "_")
	safe = strings.TrimLeft(safe, "._")
	if safe == "" {
		return "photo"
	}
	return safe
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}
