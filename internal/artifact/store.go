// Package artifact gives read-only access to the files produced by the offline
// training pipeline: the classifier dump, the comparison table and the SHAP
// images.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ID names an artifact independently of where it lives on disk.
type ID string

const (
	Model       ID = "model"
	Comparisons ID = "comparisons"
	ShapBar     ID = "shap_bar"
	ShapDot     ID = "shap_dot"
	Tracking    ID = "tracking"
)

// ErrNotFound is returned when an artifact is not registered or its file is absent.
var ErrNotFound = errors.New("artifact not found")

// Image is a raster artifact ready to be served.
type Image struct {
	ID          ID
	Bytes       []byte
	ContentType string
}

// Store resolves artifact ids to files under a single root directory.
type Store struct {
	root  string
	files map[ID]string
}

// Open builds a store rooted at root. Empty entries in files are skipped;
// relative entries are resolved against root and must stay inside it.
func Open(root string, files map[ID]string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("artifact store: root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s := &Store{root: abs, files: make(map[ID]string, len(files))}
	for id, name := range files {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		resolved, err := s.resolve(name)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", id, err)
		}
		s.files[id] = resolved
	}
	return s, nil
}

func (s *Store) resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	full := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes artifact root", name)
	}
	return full, nil
}

// Root returns the absolute artifact directory.
func (s *Store) Root() string {
	return s.root
}

// IDs lists the registered artifacts in a stable order.
func (s *Store) IDs() []ID {
	out := make([]ID, 0, len(s.files))
	for id := range s.files {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Path returns the file backing id after checking it exists.
func (s *Store) Path(id ID) (string, error) {
	path, ok := s.files[id]
	if !ok {
		return "", fmt.Errorf("%w: %s is not configured", ErrNotFound, id)
	}
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s at %s", ErrNotFound, id, path)
		}
		return "", fmt.Errorf("artifact %s: %w", id, err)
	}
	if stat.IsDir() {
		return "", fmt.Errorf("%w: %s at %s is a directory", ErrNotFound, id, path)
	}
	return path, nil
}

// Load reads the whole artifact. The bytes are never partial: any read
// failure is returned as an error.
func (s *Store) Load(id ID) ([]byte, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, id, path)
		}
		return nil, fmt.Errorf("read artifact %s: %w", id, err)
	}
	return data, nil
}

// LoadImage reads an image artifact and sniffs its content type.
func (s *Store) LoadImage(id ID) (Image, error) {
	data, err := s.Load(id)
	if err != nil {
		return Image{}, err
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return Image{}, fmt.Errorf("artifact %s is not an image (%s)", id, ct)
	}
	return Image{ID: id, Bytes: data, ContentType: ct}, nil
}
