package acts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FileMover relocates generated act files into the archive vault.
type FileMover interface {
	// Move returns the vault path, or "" when there was nothing to move.
	Move(ctx context.Context, caseID int64, fileName string) (string, error)
	// Restore puts a moved file back into the working directory.
	Restore(ctx context.Context, caseID int64, fileName string) error
}

// FSVault moves files between two local directories.
type FSVault struct {
	generated string
	vault     string
}

// NewFSVault builds a vault rooted at vaultDir reading from generatedDir.
func NewFSVault(generatedDir, vaultDir string) *FSVault {
	return &FSVault{generated: generatedDir, vault: vaultDir}
}

func (v *FSVault) paths(caseID int64, fileName string) (string, string) {
	name := filepath.Base(filepath.Clean(fileName))
	return filepath.Join(v.generated, name),
		filepath.Join(v.vault, "case-"+strconv.FormatInt(caseID, 10), name)
}

// Move implements FileMover. A missing source file is not an error.
func (v *FSVault) Move(ctx context.Context, caseID int64, fileName string) (string, error) {
	if fileName == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, dst := v.paths(caseID, fileName)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("acts: stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("acts: prepare vault: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("acts: move %s: %w", src, err)
	}
	return dst, nil
}

// Restore implements FileMover.
func (v *FSVault) Restore(_ context.Context, caseID int64, fileName string) error {
	src, dst := v.paths(caseID, fileName)
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return os.Rename(dst, src)
}
