package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute path guaranteed to be a descendant of the
// workspace root, rejecting absolute inputs, ".." traversal, and symlinks
// that resolve outside the root, each with a distinct "path traversal"
// error.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute paths are not allowed", agent.ErrPathTraversal)
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	rootReal, err := realOrSelf(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	target := filepath.Join(rootAbs, clean)
	rel, err := filepath.Rel(rootAbs, target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes the workspace", agent.ErrPathTraversal, path)
	}

	// Resolve symlinks on the deepest existing ancestor, then re-check that
	// the resolved location is still a descendant of the (also resolved)
	// workspace root: a symlink inside the workspace may point outside it.
	resolved, err := resolveExistingSymlinks(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	relReal, err := filepath.Rel(rootReal, resolved)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if relReal == ".." || strings.HasPrefix(relReal, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes the workspace via a symlink", agent.ErrPathTraversal, path)
	}

	return target, nil
}

// realOrSelf returns the symlink-resolved form of path, or path itself if
// it does not yet exist.
func realOrSelf(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	return real, nil
}

// resolveExistingSymlinks walks up from path to the first existing
// ancestor, resolves symlinks on that ancestor, and rejoins the remaining
// (not-yet-created) path segments. This lets writes to not-yet-existing
// files still be checked against their real parent directory.
func resolveExistingSymlinks(path string) (string, error) {
	current := path
	var suffix []string
	for {
		real, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{real}, suffix...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		suffix = append([]string{filepath.Base(current)}, suffix...)
		current = parent
	}
}
