//go:build windows

package models

import (
	"fmt"
	"os"
)

// Stat reads the metadata of the entry at path without following
// symbolic links. Windows exposes no stable inode number through this
// interface, so identity correlation degrades to plain timeouts there.
func Stat(path string) (Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to stat path: %w", err)
	}

	return Metadata{
		Size:      info.Size(),
		IsFile:    info.Mode().IsRegular(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}, nil
}
