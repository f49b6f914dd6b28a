package models

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Metadata is a point-in-time snapshot of the identity and kind of a
// filesystem entry. Instances are never mutated; every observation
// produces a fresh one.
type Metadata struct {
	Inode     uint64
	Size      int64
	IsFile    bool
	IsDir     bool
	IsSymlink bool
}

// Supported reports whether the entry is of a kind the watcher tracks.
// Everything that is neither a regular file nor a directory is treated
// as absent.
func (m Metadata) Supported() bool {
	return m.IsFile || m.IsDir
}

// ListDir returns the names of the regular files and directories
// contained in path, split by kind. Other entry kinds are dropped.
func ListDir(path string) (files, dirs []string, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list directory: %w", err)
	}

	for _, entry := range entries {
		switch {
		case entry.Type().IsRegular():
			files = append(files, entry.Name())
		case entry.IsDir():
			dirs = append(dirs, entry.Name())
		}
	}

	return files, dirs, nil
}

// Digest returns the hex encoded blake3 hash of the file at path.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to copy file content: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
