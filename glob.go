package compcache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// expandGlob returns the regular files matching pattern, sorted lexically.
// Patterns support ** for zero or more directories. A pattern whose base
// directory does not exist has no matches. Nothing inside the directory
// skip is ever matched; an empty skip excludes nothing.
func expandGlob(fs afero.Fs, pattern, skip string) ([]string, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}

	var matches []string
	if !strings.Contains(pattern, "**") {
		found, err := afero.Glob(fs, pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range found {
			info, err := fs.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.Mode().IsRegular() && !within(path, skip) {
				matches = append(matches, path)
			}
		}
		sort.Strings(matches)
		return matches, nil
	}

	baseDir := globBase(pattern)
	exists, err := afero.DirExists(fs, baseDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	err = afero.Walk(fs, baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && skip != "" && filepath.Clean(path) == skip {
			return filepath.SkipDir
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if matchesGlobPattern(path, pattern) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// within reports whether path lies inside dir.
func within(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// globBase returns the directory to walk for a recursive pattern: the
// directory part before the first "**".
func globBase(pattern string) string {
	prefix := strings.Split(pattern, "**")[0]
	if prefix == "" {
		return "."
	}
	if strings.HasSuffix(prefix, "/") || strings.HasSuffix(prefix, string(filepath.Separator)) {
		return filepath.Clean(prefix)
	}
	return filepath.Dir(prefix)
}

// validatePattern rejects malformed segments up front so a bad pattern is
// an error rather than silently matching nothing.
func validatePattern(pattern string) error {
	for _, part := range strings.Split(filepath.ToSlash(pattern), "/") {
		if part == "**" {
			continue
		}
		if _, err := filepath.Match(part, ""); err != nil {
			return err
		}
	}
	return nil
}

// matchesGlobPattern checks if a path matches a pattern with ** support.
func matchesGlobPattern(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)
	path = filepath.ToSlash(path)

	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	return matchGlobParts(pathParts, patternParts, 0, 0)
}

// matchGlobParts recursively matches path parts against pattern parts.
func matchGlobParts(pathParts, patternParts []string, pathIdx, patternIdx int) bool {
	if patternIdx >= len(patternParts) {
		return pathIdx >= len(pathParts)
	}

	if pathIdx >= len(pathParts) {
		for i := patternIdx; i < len(patternParts); i++ {
			if patternParts[i] != "**" {
				return false
			}
		}
		return true
	}

	patternPart := patternParts[patternIdx]
	if patternPart == "**" {
		if matchGlobParts(pathParts, patternParts, pathIdx, patternIdx+1) {
			return true
		}
		return matchGlobParts(pathParts, patternParts, pathIdx+1, patternIdx)
	}

	matched, err := filepath.Match(patternPart, pathParts[pathIdx])
	if err != nil || !matched {
		return false
	}

	return matchGlobParts(pathParts, patternParts, pathIdx+1, patternIdx+1)
}
