package compcache

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

// Dependency manifests looked up in the project root, in priority order.
const (
	RequirementsFile = "requirements.txt"
	PyprojectFile    = "pyproject.toml"
)

// projectDependencies auto-detects the dependencies declared for the project
// at root. The first manifest found wins. A missing or malformed manifest
// never fails; it only yields fewer dependencies.
func projectDependencies(fs afero.Fs, root string, logger *slog.Logger) []string {
	reqPath := filepath.Join(root, RequirementsFile)
	if isFile(fs, reqPath) {
		data, err := afero.ReadFile(fs, reqPath)
		if err == nil {
			return parseRequirements(data)
		}
		logger.Warn("skipping unreadable dependency manifest", "path", reqPath, "error", err)
	}

	pyPath := filepath.Join(root, PyprojectFile)
	if isFile(fs, pyPath) {
		data, err := afero.ReadFile(fs, pyPath)
		if err != nil {
			logger.Warn("skipping unreadable dependency manifest", "path", pyPath, "error", err)
			return nil
		}
		deps, err := parsePyproject(data)
		if err != nil {
			logger.Warn("ignoring malformed dependency manifest",
				"error", &Error{Kind: ManifestParse, Op: "parse manifest", Path: pyPath, Err: err})
			return nil
		}
		return deps
	}

	logger.Warn("did not auto-detect dependencies", "root", root, "error", ErrNoDependencyManifest)
	return nil
}

// parseRequirements returns one dependency per trimmed line, skipping blank
// lines and # comments.
func parseRequirements(data []byte) []string {
	var deps []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		deps = append(deps, line)
	}
	return deps
}

// parsePyproject reads project.dependencies followed by every group of
// project.optional-dependencies, groups in sorted name order. Entries that
// are not strings are skipped.
func parsePyproject(data []byte) ([]string, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	project, _ := doc["project"].(map[string]any)
	if project == nil {
		return nil, nil
	}

	deps := appendStrings(nil, project["dependencies"])

	optional, _ := project["optional-dependencies"].(map[string]any)
	groups := make([]string, 0, len(optional))
	for group := range optional {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		deps = appendStrings(deps, optional[group])
	}

	return deps, nil
}

func appendStrings(dst []string, v any) []string {
	items, ok := v.([]any)
	if !ok {
		return dst
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			dst = append(dst, s)
		}
	}
	return dst
}

func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
