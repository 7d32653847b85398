// Package home manages the bindery home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the bindery home directory.
	DefaultDirName = ".bindery"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// QueueDBName is the SQLite database holding job and stage records.
	QueueDBName = "queue.db"

	// ArtifactsDirName is the Badger database holding stage artifacts.
	ArtifactsDirName = "artifacts"

	// OriginalsDirName holds the source PDFs per book.
	OriginalsDirName = "originals"

	// InboxDirName is watched for new PDFs to ingest.
	InboxDirName = "inbox"
)

// Dir represents the bindery home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.bindery).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// QueueDBPath returns the path to the job queue database.
func (d *Dir) QueueDBPath() string {
	return filepath.Join(d.path, QueueDBName)
}

// ArtifactsPath returns the path to the artifact store directory.
func (d *Dir) ArtifactsPath() string {
	return filepath.Join(d.path, ArtifactsDirName)
}

// InboxPath returns the path to the ingest inbox directory.
func (d *Dir) InboxPath() string {
	return filepath.Join(d.path, InboxDirName)
}

// OriginalsDir returns the directory holding source PDFs for a book.
func (d *Dir) OriginalsDir(bookID string) string {
	return filepath.Join(d.path, OriginalsDirName, bookID)
}

// ModuleDefinitionPath returns the path to a book's manual module
// definition file, if the operator provided one.
func (d *Dir) ModuleDefinitionPath(bookID string) string {
	return filepath.Join(d.OriginalsDir(bookID), "modules.yaml")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{
		d.path,
		d.ArtifactsPath(),
		d.InboxPath(),
		filepath.Join(d.path, OriginalsDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureOriginalsDir creates the originals directory for a book.
func (d *Dir) EnsureOriginalsDir(bookID string) error {
	if err := os.MkdirAll(d.OriginalsDir(bookID), 0o755); err != nil {
		return fmt.Errorf("failed to create originals directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
