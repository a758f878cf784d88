// Package grantstore persists grants answered "always" at a prompt.
package grantstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/infrastructure/parser"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	fs       afero.Fs
	path     string      // Path to the grants file
	dirPerm  os.FileMode // Permission for created directories
	filePerm os.FileMode // Permission for the grants file
}

func defaultFileStoreConfig() fileStoreConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return fileStoreConfig{
		fs:       afero.NewOsFs(),
		path:     filepath.Join(home, ".reglet", "script-grants.yaml"),
		dirPerm:  0o755,
		filePerm: 0o600,
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithPath sets the path to the grants file.
func WithPath(path string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.path = path
	}
}

// WithFs sets the filesystem the store lives on.
func WithFs(fsys afero.Fs) FileStoreOption {
	return func(c *fileStoreConfig) {
		if fsys != nil {
			c.fs = fsys
		}
	}
}

// WithFilePermissions sets the file permissions for the grants file.
// Default is 0o600 (user-only).
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the directory permissions for the grants directory.
// Default is 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore keeps a GrantSet in a YAML file.
type FileStore struct {
	parser *parser.YamlPolicyParser
	config fileStoreConfig
}

var _ ports.GrantStore = (*FileStore)(nil)

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{parser: parser.NewYamlPolicyParser(), config: cfg}
}

// Load returns the stored grants, or an empty set if the file does not exist.
func (s *FileStore) Load() (*entities.GrantSet, error) {
	data, err := afero.ReadFile(s.config.fs, s.config.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &entities.GrantSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grant store: %w", err)
	}

	grants, err := s.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("grant store %s: %w", s.config.path, err)
	}
	return grants, nil
}

// Save replaces the stored grants. The file is written to a temporary name
// and renamed so readers never see a partial document.
func (s *FileStore) Save(grants *entities.GrantSet) error {
	data, err := yaml.Marshal(grants)
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}

	dir := filepath.Dir(s.config.path)
	if err := s.config.fs.MkdirAll(dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create grant store directory: %w", err)
	}

	tmp := s.config.path + ".tmp"
	if err := afero.WriteFile(s.config.fs, tmp, data, s.config.filePerm); err != nil {
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	if err := s.config.fs.Rename(tmp, s.config.path); err != nil {
		_ = s.config.fs.Remove(tmp)
		return fmt.Errorf("failed to replace grant store: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the backing store.
func (s *FileStore) ConfigPath() string {
	return s.config.path
}
