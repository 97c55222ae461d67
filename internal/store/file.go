package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"map-annotator/internal/pose"
)

// document is the on-disk shape shared by the YAML and TOML encodings.
type document struct {
	Frame string               `yaml:"frame" toml:"frame"`
	Poses map[string]pose.Pose `yaml:"poses" toml:"poses"`
}

// FileStore keeps the whole pose map in a single YAML or TOML file.
type FileStore struct {
	path   string
	format Format
}

func NewFileStore(path string, format Format) *FileStore {
	if format != FormatTOML {
		format = FormatYAML
	}
	return &FileStore{path: path, format: format}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (map[string]pose.Pose, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read pose file: %w", err)
	}
	return s.decode(data)
}

func (s *FileStore) decode(data []byte) (map[string]pose.Pose, error) {
	var doc document
	var err error
	switch s.format {
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse pose file %s: %w", s.path, err)
	}
	if doc.Frame != "" && doc.Frame != pose.Frame {
		return nil, fmt.Errorf("pose file %s uses frame %q, expected %q", s.path, doc.Frame, pose.Frame)
	}
	if doc.Poses == nil {
		doc.Poses = map[string]pose.Pose{}
	}
	return doc.Poses, nil
}

func (s *FileStore) Save(ctx context.Context, poses map[string]pose.Pose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := document{Frame: pose.Frame, Poses: poses}
	if doc.Poses == nil {
		doc.Poses = map[string]pose.Pose{}
	}

	var data []byte
	var err error
	switch s.format {
	case FormatTOML:
		data, err = toml.Marshal(doc)
	default:
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("could not encode poses: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// MoveAside renames the pose file to its path plus suffix and returns the new
// path. An earlier file under that name is replaced.
func (s *FileStore) MoveAside(suffix string) (string, error) {
	dst := s.path + suffix
	if err := os.Rename(s.path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// writeFileAtomic writes into a sibling temp file and renames it over path so
// readers (and the file watcher) never observe a half-written store.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("could not sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not replace pose file: %w", err)
	}
	return nil
}
