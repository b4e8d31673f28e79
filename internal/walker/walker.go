// Package walker selects the candidate text files of a cloned repository.
//
// Selection policy is a denylist: version-control metadata, dependency and
// build-output directories, lock files and binary formats are excluded; every
// remaining file that decodes as UTF-8 text is a candidate. A pattern match
// against the full relative path, the bare filename, or any single path
// segment excludes the file.
package walker

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// File is a selected file with its relative (slash-separated) path and
// decoded content.
type File struct {
	Path    string
	Content string
}

// maxFileSize is the largest file we'll consider (1 MiB).
const maxFileSize = 1 << 20

// defaultIgnores excludes VCS metadata, dependency/build directories,
// lock files and common binary formats.
var defaultIgnores = []string{
	".git", ".svn", ".hg",
	"node_modules", "vendor", "__pycache__",
	".idea", ".vscode",
	"dist", "build",
	".env",
	"*.pyc", "*.o", "*.so", "*.a", "*.dll", "*.exe",
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.svg", "*.ico",
	"package-lock.json", "yarn.lock",
}

// Selector walks a workspace root and yields candidate files.
type Selector struct {
	patterns []string
}

// NewSelector returns a Selector using the default denylist plus any extra
// patterns.
func NewSelector(extra ...string) *Selector {
	patterns := make([]string, 0, len(defaultIgnores)+len(extra))
	patterns = append(patterns, defaultIgnores...)
	patterns = append(patterns, extra...)
	return &Selector{patterns: patterns}
}

// Select walks root and returns the candidate files in walk order.
// Files that cannot be read or do not decode as UTF-8 are skipped silently;
// only a failure to walk the root itself is an error.
func (s *Selector) Select(root string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []File
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			return nil // unreadable entry, keep walking
		}

		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if s.Ignored(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() == 0 || info.Size() > maxFileSize {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return nil // per-file read failures are not fatal
		}
		if !utf8.Valid(content) {
			return nil // binary file
		}

		files = append(files, File{Path: rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Ignored reports whether relPath matches the denylist: against the full
// relative path, the bare filename, or any individual path segment.
func (s *Selector) Ignored(relPath string) bool {
	name := path.Base(relPath)
	for _, p := range s.patterns {
		if match(p, relPath) || match(p, name) {
			return true
		}
		for _, segment := range strings.Split(relPath, "/") {
			if match(p, segment) {
				return true
			}
		}
	}
	return false
}

func match(pattern, s string) bool {
	if pattern == s {
		return true
	}
	ok, _ := path.Match(pattern, s)
	return ok
}
