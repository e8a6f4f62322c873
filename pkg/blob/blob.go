package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

const pocFileName = "poc.bin"

// Store lays PoC artifacts out on disk under a single root directory.
// PoC IDs are 32 lowercase hex characters; the first two byte pairs fan
// records out so no directory grows unbounded.
type Store struct {
	root string
}

// New creates the root directory if needed and returns a store over it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the artifact directory for a PoC ID:
// <root>/<id[0:2]>/<id[2:4]>/<id>.
func (s *Store) Dir(pocID string) string {
	return filepath.Join(s.root, pocID[0:2], pocID[2:4], pocID)
}

// PoCPath returns where the submitted bytes live for a PoC ID.
func (s *Store) PoCPath(pocID string) string {
	return filepath.Join(s.Dir(pocID), pocFileName)
}

// HasPoC reports whether the submitted bytes are present on disk.
func (s *Store) HasPoC(pocID string) bool {
	info, err := os.Stat(s.PoCPath(pocID))
	return err == nil && info.Mode().IsRegular()
}

// WritePoC persists the submitted bytes and returns their path.
func (s *Store) WritePoC(pocID string, data []byte) (string, error) {
	dir := s.Dir(pocID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create poc dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, pocFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write poc file: %w", err)
	}
	return path, nil
}

// OutputPath returns where captured run output lives for a mode
// (output.vul or output.fix).
func (s *Store) OutputPath(pocID string, mode types.Mode) string {
	return filepath.Join(s.Dir(pocID), "output."+string(mode))
}

// WriteOutput persists the captured output of a finished run.
func (s *Store) WriteOutput(pocID string, mode types.Mode, data []byte) error {
	dir := s.Dir(pocID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create poc dir %s: %w", dir, err)
	}
	if err := os.WriteFile(s.OutputPath(pocID, mode), data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// ReadOutput returns the captured output for a mode. A missing,
// unreadable, or non-UTF-8 file reads as empty: stored output is
// advisory and never fails a request.
func (s *Store) ReadOutput(pocID string, mode types.Mode) string {
	data, err := os.ReadFile(s.OutputPath(pocID, mode))
	if err != nil {
		return ""
	}
	if !utf8.Valid(data) {
		return ""
	}
	return string(data)
}
