//go:build darwin || linux

package models

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Stat reads the metadata of the entry at path without following
// symbolic links.
func Stat(path string) (Metadata, error) {
	var stat unix.Stat_t

	err := unix.Lstat(path, &stat)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to stat path: %w", err)
	}

	mode := uint32(stat.Mode) & unix.S_IFMT

	return Metadata{
		Inode:     stat.Ino,
		Size:      stat.Size,
		IsFile:    mode == unix.S_IFREG,
		IsDir:     mode == unix.S_IFDIR,
		IsSymlink: mode == unix.S_IFLNK,
	}, nil
}
