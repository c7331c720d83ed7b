package compcache

import (
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Fingerprint identifies the effective inputs of a unit of work.
// It is 16 upper-case hex digits rendered from a 64-bit digest.
type Fingerprint string

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Valid reports whether f has the fingerprint format.
func (f Fingerprint) Valid() bool {
	if len(f) != 16 {
		return false
	}
	for i := 0; i < len(f); i++ {
		c := f[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// ParseFingerprint parses s as a fingerprint. Lower-case hex is accepted
// and normalized.
func ParseFingerprint(s string) (Fingerprint, error) {
	fp := Fingerprint(strings.ToUpper(strings.TrimSpace(s)))
	if !fp.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFingerprint, s)
	}
	return fp, nil
}

// WorkDescriptor describes one unit of work to fingerprint.
type WorkDescriptor struct {
	ProjectRoot        string   // Project root directory
	SourceRoot         string   // Source root, relative to ProjectRoot
	Action             string   // Action identifier, e.g. "check"
	InterpreterVersion string   // Interpreter version, e.g. "3.11"
	FileDependencies   []string // Glob patterns relative to ProjectRoot, hashed in list order
	EnvDependencies    []string // Environment variable names, hashed in list order

	// Backend is accepted but not part of the fingerprint: two backends with
	// otherwise identical inputs share a fingerprint.
	Backend string
}

// stage is one ordered source of bytes in the fingerprint pipeline.
type stage interface {
	// write streams the stage's bytes into h.
	write(h hash.Hash, fs afero.Fs) error
	String() string
}

// Fingerprint computes the fingerprint of desc. It rereads every declared
// input in full and fails with an InputRead error if any cannot be read.
func (c *Cache) Fingerprint(desc WorkDescriptor) (Fingerprint, error) {
	h := c.newHash()
	for _, s := range c.stages(desc) {
		c.log().Debug("hashing fingerprint stage", "stage", s.String())
		if err := s.write(h, c.fs); err != nil {
			return "", err
		}
	}
	return formatFingerprint(h.Sum64()), nil
}

// stages returns the fingerprint pipeline for desc. The order is part of
// the fingerprint format.
func (c *Cache) stages(desc WorkDescriptor) []stage {
	return []stage{
		sourceStage{root: filepath.Join(desc.ProjectRoot, desc.SourceRoot), ext: c.sourceExt},
		envStage{names: desc.EnvDependencies, lookup: c.envLookup},
		projectDepsStage{root: desc.ProjectRoot, logger: c.log()},
		fileDepsStage{root: desc.ProjectRoot, patterns: desc.FileDependencies},
		stringStage{name: "action", value: desc.Action},
		stringStage{name: "interpreter", value: desc.InterpreterVersion},
	}
}

// sourceStage hashes every source file under root in walk order.
type sourceStage struct {
	root string
	ext  string
}

func (s sourceStage) write(h hash.Hash, fs afero.Fs) error {
	err := afero.Walk(fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return inputError("walk source", path, err)
		}
		if info.IsDir() {
			if path != s.root && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || filepath.Ext(path) != s.ext {
			return nil
		}
		if err := hashFile(fs, path, h); err != nil {
			return inputError("read source", path, err)
		}
		return nil
	})
	return err
}

func (s sourceStage) String() string {
	return fmt.Sprintf("source:%s(*%s)", s.root, s.ext)
}

// skipDir reports whether a directory is never part of the source tree.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

// envStage hashes NAME=VALUE for each variable; unset variables hash as NAME=.
type envStage struct {
	names  []string
	lookup EnvLookup
}

func (e envStage) write(h hash.Hash, _ afero.Fs) error {
	for _, name := range e.names {
		value, _ := e.lookup(name)
		io.WriteString(h, name+"="+value)
	}
	return nil
}

func (e envStage) String() string {
	return fmt.Sprintf("env:%s", strings.Join(e.names, ","))
}

// projectDepsStage hashes the dependencies declared in the project manifest.
type projectDepsStage struct {
	root   string
	logger *slog.Logger
}

func (p projectDepsStage) write(h hash.Hash, fs afero.Fs) error {
	for _, dep := range projectDependencies(fs, p.root, p.logger) {
		io.WriteString(h, dep)
	}
	return nil
}

func (p projectDepsStage) String() string {
	return fmt.Sprintf("deps:%s", p.root)
}

// fileDepsStage hashes the files matched by each pattern, pattern by pattern.
// The store never matches: its records would change every fingerprint they
// are written under.
type fileDepsStage struct {
	root     string
	patterns []string
}

func (f fileDepsStage) write(h hash.Hash, fs afero.Fs) error {
	for _, pattern := range f.patterns {
		matches, err := expandGlob(fs, filepath.Join(f.root, pattern), StoreDir(f.root))
		if err != nil {
			return inputError("expand file dependency", pattern, err)
		}
		for _, match := range matches {
			if err := hashFile(fs, match, h); err != nil {
				return inputError("read file dependency", match, err)
			}
		}
	}
	return nil
}

func (f fileDepsStage) String() string {
	return fmt.Sprintf("files:%s", strings.Join(f.patterns, ","))
}

// stringStage hashes a single string value.
type stringStage struct {
	name  string
	value string
}

func (s stringStage) write(h hash.Hash, _ afero.Fs) error {
	io.WriteString(h, s.value)
	return nil
}

func (s stringStage) String() string {
	return fmt.Sprintf("%s=%s", s.name, s.value)
}
