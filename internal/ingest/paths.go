package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveRoot returns the absolute, symlink-resolved content root. An empty
// root defaults to the current directory.
func ResolveRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(root): %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// validatePath resolves relPath against the content root and rejects
// absolute inputs, parent traversal, and symlink escapes. Content packs are
// untrusted input; a lore file must not be able to read outside its root.
func validatePath(absRoot, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", relPath)
	}
	cleaned := filepath.Clean(relPath)
	if cleaned == "" {
		cleaned = "."
	}
	candidate := filepath.Join(absRoot, cleaned)

	// Resolve symlinks on the candidate itself, or on its deepest existing
	// ancestor, so an escape through a symlinked parent is caught.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if resolvedParent, err2 := filepath.EvalSymlinks(filepath.Dir(candidate)); err2 == nil {
		candidate = filepath.Join(resolvedParent, filepath.Base(candidate))
	}

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s resolves outside the content root", relPath)
	}
	return candidate, nil
}
