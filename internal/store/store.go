// Package store persists the named-pose map.
//
// Three backends are provided: a YAML file, a TOML file and an embedded
// BadgerDB directory. All of them satisfy Store and report a store that has
// never been written with ErrNotFound.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"map-annotator/internal/pose"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("pose store not found")

type Store interface {
	Load(ctx context.Context) (map[string]pose.Pose, error)
	Save(ctx context.Context, poses map[string]pose.Pose) error
}

type Format string

const (
	FormatYAML   Format = "yaml"
	FormatTOML   Format = "toml"
	FormatBadger Format = "badger"
)

// DetectFormat picks a backend from the path when none is configured.
// A path without a recognised extension is treated as a Badger directory.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatBadger
	}
}

// Open returns the Store for path. The returned close func must be called on
// shutdown; it is a no-op for file stores.
func Open(path string, format Format, logger *slog.Logger) (Store, func() error, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, errors.New("store path is empty")
	}
	if format == "" {
		format = DetectFormat(path)
	}
	switch format {
	case FormatYAML, FormatTOML:
		return NewFileStore(path, format), func() error { return nil }, nil
	case FormatBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = path
		cfg.Logger = logger
		bs, err := OpenBadger(cfg)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store format %q", format)
	}
}
