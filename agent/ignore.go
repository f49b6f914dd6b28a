package agent

import (
	"path/filepath"
	"strings"
)

// buildIgnore compiles the configured ignore patterns into the predicate
// the engine consumes. Patterns match the path's base name with
// filepath.Match semantics; ignoreHidden additionally skips any path
// with a dot-prefixed component. Returns nil when nothing is ignored.
func buildIgnore(patterns []string, ignoreHidden bool) func(string) bool {
	if len(patterns) == 0 && !ignoreHidden {
		return nil
	}

	return func(path string) bool {
		if ignoreHidden && hasHiddenComponent(path) {
			return true
		}

		base := filepath.Base(path)
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, base)
			if err == nil && matched {
				return true
			}
		}

		return false
	}
}

func hasHiddenComponent(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
