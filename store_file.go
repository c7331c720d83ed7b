package compcache

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// fileStore keeps one JSON record per fingerprint:
//
//	<dir>/<fp[:2]>/<fp>.json
//
// Records are replaced by writing a temp file next to the target and
// renaming it over, so a reader never sees a partial record.
type fileStore struct {
	fs      afero.Fs
	dir     string
	nowFunc NowFunc
}

// openFileStore creates dir if needed. It is safe to call concurrently.
func openFileStore(fs afero.Fs, dir string, nowFunc NowFunc) (*fileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, storeInitError(dir, err)
	}
	return &fileStore{fs: fs, dir: dir, nowFunc: nowFunc}, nil
}

// recordPath returns the path of the record for fp.
func (s *fileStore) recordPath(fp Fingerprint) string {
	return filepath.Join(s.dir, string(fp[:2]), string(fp)+".json")
}

// load reads the record for fp. It returns nil, nil if there is none.
func (s *fileStore) load(fp Fingerprint) (*record, error) {
	data, err := afero.ReadFile(s.fs, s.recordPath(fp))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return decodeRecord(fp, data)
}

func (s *fileStore) Get(fp Fingerprint) (*Entry, error) {
	r, err := s.load(fp)
	if err != nil {
		return nil, storeIOError("get", fp, err)
	}
	if r == nil {
		return nil, nil
	}
	return r.entry(), nil
}

func (s *fileStore) Set(fp Fingerprint, entry Entry) (*Entry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, storeIOError("set", fp, err)
	}

	// A corrupted previous record is overwritten. Other read failures are not.
	prev, err := s.load(fp)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		return nil, storeIOError("set", fp, err)
	}

	data, err := encodeRecord(newRecord(fp, entry, prev, s.nowFunc()))
	if err != nil {
		return nil, storeIOError("set", fp, err)
	}
	if err := s.writeAtomic(s.recordPath(fp), data); err != nil {
		return nil, storeIOError("set", fp, err)
	}

	if prev == nil {
		return nil, nil
	}
	return prev.entry(), nil
}

// writeAtomic writes data to a temp file in path's directory and renames it
// over path.
func (s *fileStore) writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod record: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename record: %w", err)
	}
	return nil
}

func (s *fileStore) Stats() (StoreStats, error) {
	var stats StoreStats
	err := afero.Walk(s.fs, s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Temp files of concurrent writers come and go.
			if errors.Is(err, iofs.ErrNotExist) && path != s.dir {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		stats.Entries++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return StoreStats{}, storeIOError("stats", "", err)
	}
	return stats, nil
}

// Close is a no-op; the file store holds no open handles between calls.
func (s *fileStore) Close() error {
	return nil
}
