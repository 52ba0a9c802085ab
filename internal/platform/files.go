package platform

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
)

var captureNameRe = regexp.MustCompile(`^IMG_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jpg$`)

// CaptureInfo describes a capture file on disk.
type CaptureInfo struct {
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// CaptureStore creates capture targets in a private directory. It
// implements capability.FileStore.
type CaptureStore struct {
	dir string
	mu  sync.Mutex
}

// NewCaptureStore creates the store and ensures its directory exists.
func NewCaptureStore(dir string) (*CaptureStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("capture store: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("capture store: mkdir %s: %w", abs, err)
	}
	return &CaptureStore{dir: abs}, nil
}

// Dir returns the absolute capture directory.
func (s *CaptureStore) Dir() string { return s.dir }

// CreateCaptureFile reserves an empty, uniquely named image file.
func (s *CaptureStore) CreateCaptureFile() (capability.CapturedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := "IMG_" + uuid.New().String() + ".jpg"
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return capability.CapturedFile{}, fmt.Errorf("capture store: create: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return capability.CapturedFile{}, fmt.Errorf("capture store: close: %w", err)
	}
	return capability.CapturedFile{Path: path, URI: FileURI(path)}, nil
}

// Discard removes a capture file this store created. Anything else is left
// untouched.
func (s *CaptureStore) Discard(f capability.CapturedFile) {
	if !s.owns(f.Path) {
		slog.Warn("refusing to discard file outside capture dir", "path", f.Path)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		slog.Debug("capture discard failed", "path", f.Path, "error", err)
	}
}

func (s *CaptureStore) owns(path string) bool {
	return filepath.Dir(path) == s.dir && captureNameRe.MatchString(filepath.Base(path))
}

// List returns non-empty captures, newest first.
func (s *CaptureStore) List() ([]CaptureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "IMG_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("capture store: glob: %w", err)
	}
	out := make([]CaptureInfo, 0, len(matches))
	for _, path := range matches {
		if !captureNameRe.MatchString(filepath.Base(path)) {
			continue
		}
		st, err := os.Stat(path)
		if err != nil || st.Size() == 0 {
			continue
		}
		out = append(out, CaptureInfo{
			Name:      filepath.Base(path),
			URI:       FileURI(path),
			SizeBytes: st.Size(),
			CreatedAt: st.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FileURI converts an absolute path into a file:// URI.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// PathFromURI returns the local path of a file:// URI, or a bare path as-is.
func PathFromURI(uri string) (string, bool) {
	if strings.HasPrefix(uri, "/") {
		return uri, true
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
