package compcache

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	// ErrInvalidFingerprint is returned when a fingerprint is not 16 upper-case hex digits.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")

	// ErrInvalidMessage is returned when an item message is not valid UTF-8
	// and so cannot be stored without altering it.
	ErrInvalidMessage = errors.New("item message is not valid UTF-8")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupted record")

	// ErrNoDependencyManifest is reported when neither requirements.txt nor
	// pyproject.toml exists in the project root.
	ErrNoDependencyManifest = errors.New("no requirements.txt or pyproject.toml in project root")
)

// Kind classifies an Error.
type Kind int

const (
	// InputRead means a declared source or dependency file could not be read.
	// No fingerprint is produced.
	InputRead Kind = iota + 1

	// ManifestParse means a project manifest exists but is malformed.
	// It is only ever logged; the manifest then contributes no dependencies.
	ManifestParse

	// StoreInit means the on-disk store could not be created or opened.
	StoreInit

	// StoreIO means a read or write against an opened store failed.
	StoreIO
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case InputRead:
		return "input read"
	case ManifestParse:
		return "manifest parse"
	case StoreInit:
		return "store init"
	case StoreIO:
		return "store io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the error type returned by this package.
type Error struct {
	Kind Kind   // What failed
	Op   string // Operation being performed, e.g. "read source"
	Path string // File path or fingerprint involved, may be empty
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	buf.WriteString(": ")
	buf.WriteString(e.Op)
	if e.Path != "" {
		buf.WriteString(" ")
		buf.WriteString(e.Path)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or 0 if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsCacheError reports whether err means the cache itself is unavailable.
// Callers should treat such errors as "proceed without cache".
func IsCacheError(err error) bool {
	switch KindOf(err) {
	case StoreInit, StoreIO:
		return true
	}
	return false
}

func inputError(op, path string, err error) error {
	return &Error{Kind: InputRead, Op: op, Path: path, Err: err}
}

func storeInitError(path string, err error) error {
	return &Error{Kind: StoreInit, Op: "open store", Path: path, Err: err}
}

func storeIOError(op string, fp Fingerprint, err error) error {
	return &Error{Kind: StoreIO, Op: op, Path: string(fp), Err: err}
}
