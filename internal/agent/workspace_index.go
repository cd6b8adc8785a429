package agent

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// skippedDirs are never descended into when building the workspace tree.
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
	"dist": true, "build": true, "target": true, ".cache": true,
}

// WorkspaceIndex implements IndexProvider by walking a directory tree and
// rendering it as an indented text listing, bounded so it cannot blow up the
// system prompt on a large repository.
type WorkspaceIndex struct {
	Root     string
	MaxFiles int
}

// NewWorkspaceIndex builds an index rooted at root, defaulting MaxFiles to
// 2000 entries.
func NewWorkspaceIndex(root string) *WorkspaceIndex {
	return &WorkspaceIndex{Root: root, MaxFiles: 2000}
}

// Tree renders the workspace file tree as indented text, one path per line.
func (w *WorkspaceIndex) Tree(ctx context.Context) (string, error) {
	limit := w.MaxFiles
	if limit <= 0 {
		limit = 2000
	}

	var lines []string
	count := 0
	truncated := false

	err := filepath.WalkDir(w.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == w.Root {
			return nil
		}
		rel, relErr := filepath.Rel(w.Root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if count >= limit {
			truncated = true
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		indent := strings.Repeat("  ", depth)
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		lines = append(lines, indent+name)
		count++
		return nil
	})
	if err != nil {
		return "", err
	}

	if truncated {
		lines = append(lines, fmt.Sprintf("... (truncated at %d entries)", limit))
	}
	return strings.Join(lines, "\n"), nil
}
