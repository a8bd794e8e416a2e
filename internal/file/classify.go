package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsHidden reports whether a directory entry is excluded from listings.
// Dot-prefixed names are always hidden, regardless of secure mode.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Classify reports whether entryName inside basePath is a directory.
// A symbolic link is classified by what it resolves to; a broken link
// surfaces as an error.
func Classify(basePath, entryName string) (bool, error) {
	absPath := filepath.Join(basePath, entryName)

	info, err := os.Lstat(absPath)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return info.IsDir(), nil
	}

	target, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve link %s: %w", absPath, err)
	}
	targetInfo, err := os.Stat(target)
	if err != nil {
		return false, fmt.Errorf("failed to stat link target %s: %w", target, err)
	}
	return targetInfo.IsDir(), nil
}

// IsRoot reports whether path is the root of its filesystem volume.
func IsRoot(path string) bool {
	clean := filepath.Clean(path)
	return filepath.Dir(clean) == clean
}
