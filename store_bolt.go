package compcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const boltFileName = "cache.db"

var entriesBucket = []byte("computation-cache")

// boltLocks serializes handles on the same database within this process.
// bbolt's file lock already excludes other processes, but a second open
// from the same process would only wait out the lock timeout.
var boltLocks sync.Map // absolute path -> chan struct{} with capacity 1

// minOpenTimeout bounds the wait left for bbolt after the in-process lock;
// a zero bbolt timeout would wait forever.
const minOpenTimeout = 10 * time.Millisecond

// boltStore keeps every record in one bbolt database. Each Get and Set runs
// in a single transaction, so Set reports the exact previous value.
type boltStore struct {
	db      *bbolt.DB
	path    string
	nowFunc NowFunc
	unlock  func()
}

// boltPath returns the database path in dir. It is absolute so that every
// spelling of a directory shares one in-process lock.
func boltPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, boltFileName), nil
}

// lockBolt acquires the in-process lock for path, waiting until deadline.
func lockBolt(path string, deadline time.Time) (unlock func(), err error) {
	v, _ := boltLocks.LoadOrStore(path, make(chan struct{}, 1))
	sem := v.(chan struct{})

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, berrors.ErrTimeout
	}
}

// openBoltStore opens or creates the database in dir. Both another handle in
// this process and another process holding the database are waited for, up
// to timeout in total.
func openBoltStore(dir string, timeout time.Duration, nowFunc NowFunc) (*boltStore, error) {
	deadline := time.Now().Add(timeout)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeInitError(dir, err)
	}
	path, err := boltPath(dir)
	if err != nil {
		return nil, storeInitError(dir, err)
	}

	unlock, err := lockBolt(path, deadline)
	if err != nil {
		return nil, storeInitError(path, err)
	}

	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: max(time.Until(deadline), minOpenTimeout)})
	if err != nil {
		unlock()
		return nil, storeInitError(path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		unlock()
		return nil, storeInitError(path, fmt.Errorf("create bucket: %w", err))
	}

	return &boltStore{db: db, path: path, nowFunc: nowFunc, unlock: unlock}, nil
}

// loadBoltRecord decodes the record for fp inside tx. It returns nil, nil if there is none.
func loadBoltRecord(tx *bbolt.Tx, fp Fingerprint) (*record, error) {
	bucket := tx.Bucket(entriesBucket)
	if bucket == nil {
		return nil, errors.New("bucket is missing")
	}
	data := bucket.Get([]byte(fp))
	if data == nil {
		return nil, nil
	}
	return decodeRecord(fp, data)
}

func (s *boltStore) Get(fp Fingerprint) (*Entry, error) {
	var r *record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		r, err = loadBoltRecord(tx, fp)
		return err
	})
	if err != nil {
		return nil, storeIOError("get", fp, err)
	}
	if r == nil {
		return nil, nil
	}
	return r.entry(), nil
}

func (s *boltStore) Set(fp Fingerprint, entry Entry) (*Entry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, storeIOError("set", fp, err)
	}

	var prev *record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		// A corrupted previous record is overwritten.
		var err error
		prev, err = loadBoltRecord(tx, fp)
		if err != nil {
			if !errors.Is(err, ErrCorruptRecord) {
				return err
			}
			prev = nil
		}

		data, err := encodeRecord(newRecord(fp, entry, prev, s.nowFunc()))
		if err != nil {
			return err
		}
		bucket := tx.Bucket(entriesBucket)
		if bucket == nil {
			return errors.New("bucket is missing")
		}
		return bucket.Put([]byte(fp), data)
	})
	if err != nil {
		return nil, storeIOError("set", fp, err)
	}
	if prev == nil {
		return nil, nil
	}
	return prev.entry(), nil
}

func (s *boltStore) Stats() (StoreStats, error) {
	var stats StoreStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		if bucket == nil {
			return errors.New("bucket is missing")
		}
		stats.Entries = bucket.Stats().KeyN
		stats.TotalSize = tx.Size()
		return nil
	})
	if err != nil {
		return StoreStats{}, storeIOError("stats", "", err)
	}
	return stats, nil
}

// Close closes the database and releases the in-process lock.
func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.unlock()
	return err
}
