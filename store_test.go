package compcache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
	berrors "go.etcd.io/bbolt/errors"
)

const (
	fpA Fingerprint = "0123456789ABCDEF"
	fpB Fingerprint = "FEDCBA9876543210"
)

var (
	firstEntry = Entry{
		Items: []Item{
			{Status: 0, Message: "src/a.py: ok"},
			{Status: 1, Message: "src/b.py: cannot import 'c'"},
		},
		Status: 1,
	}
	secondEntry = Entry{
		Items:  []Item{{Status: 0, Message: "src/b.py: ok"}},
		Status: 0,
	}
)

// storeBackends opens a fresh store of every backend.
func storeBackends(t *testing.T) map[Backend]func(t *testing.T) Store {
	t.Helper()

	return map[Backend]func(t *testing.T) Store{
		BackendFile: func(t *testing.T) Store {
			s, err := openFileStore(afero.NewMemMapFs(), StoreDir(projectRoot), fixedNowFunc)
			if err != nil {
				t.Fatalf("openFileStore() error = %v", err)
			}
			return s
		},
		BackendBolt: func(t *testing.T) Store {
			s, err := openBoltStore(StoreDir(t.TempDir()), time.Second, fixedNowFunc)
			if err != nil {
				t.Fatalf("openBoltStore() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func assertEntry(t *testing.T, got *Entry, want Entry, context string) {
	t.Helper()

	if got == nil {
		t.Fatalf("%s: got no entry, want:\n%s", context, spew.Sdump(want))
	}
	if diff := cmp.Diff(want, *got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("%s: entry mismatch (-want +got):\n%s", context, diff)
	}
}

func TestStore(t *testing.T) {
	for backend, open := range storeBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			t.Run("miss", func(t *testing.T) {
				s := open(t)
				got, err := s.Get(fpA)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got != nil {
					t.Fatalf("Get() = %s, want nil", spew.Sdump(got))
				}
			})

			t.Run("round trip", func(t *testing.T) {
				s := open(t)
				prev, err := s.Set(fpA, firstEntry)
				if err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				if prev != nil {
					t.Fatalf("first Set() = %s, want nil", spew.Sdump(prev))
				}

				got, err := s.Get(fpA)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				assertEntry(t, got, firstEntry, "Get after Set")
			})

			t.Run("overwrite", func(t *testing.T) {
				s := open(t)
				if _, err := s.Set(fpA, firstEntry); err != nil {
					t.Fatalf("first Set() error = %v", err)
				}
				prev, err := s.Set(fpA, secondEntry)
				if err != nil {
					t.Fatalf("second Set() error = %v", err)
				}
				assertEntry(t, prev, firstEntry, "second Set")

				got, err := s.Get(fpA)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				assertEntry(t, got, secondEntry, "Get after overwrite")
			})

			t.Run("keys are independent", func(t *testing.T) {
				s := open(t)
				if _, err := s.Set(fpA, firstEntry); err != nil {
					t.Fatalf("Set(A) error = %v", err)
				}
				if _, err := s.Set(fpB, secondEntry); err != nil {
					t.Fatalf("Set(B) error = %v", err)
				}

				gotA, err := s.Get(fpA)
				if err != nil {
					t.Fatalf("Get(A) error = %v", err)
				}
				assertEntry(t, gotA, firstEntry, "Get(A)")

				stats, err := s.Stats()
				if err != nil {
					t.Fatalf("Stats() error = %v", err)
				}
				if stats.Entries != 2 {
					t.Errorf("Stats().Entries = %d, want 2", stats.Entries)
				}
				if stats.TotalSize <= 0 {
					t.Errorf("Stats().TotalSize = %d, want > 0", stats.TotalSize)
				}
			})

			t.Run("empty entry", func(t *testing.T) {
				s := open(t)
				if _, err := s.Set(fpA, Entry{}); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, err := s.Get(fpA)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				assertEntry(t, got, Entry{}, "Get empty entry")
			})
		})
	}
}

func TestStore_SetCopiesItems(t *testing.T) {
	s, err := openFileStore(afero.NewMemMapFs(), StoreDir(projectRoot), fixedNowFunc)
	if err != nil {
		t.Fatalf("openFileStore() error = %v", err)
	}

	entry := Entry{Items: []Item{{Status: 0, Message: "ok"}}}
	if _, err := s.Set(fpA, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	entry.Items[0].Message = "mutated"

	got, err := s.Get(fpA)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertEntry(t, got, Entry{Items: []Item{{Status: 0, Message: "ok"}}}, "Get after caller mutation")
}

func TestFileStore_Layout(t *testing.T) {
	memFs := afero.NewMemMapFs()
	now := fixedNowFunc()
	clock := func() time.Time { return now }

	s, err := openFileStore(memFs, StoreDir(projectRoot), clock)
	if err != nil {
		t.Fatalf("openFileStore() error = %v", err)
	}
	if _, err := s.Set(fpA, firstEntry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	path := filepath.Join(projectRoot, ".tach", "computation-cache", "01", string(fpA)+".json")
	data, err := afero.ReadFile(memFs, path)
	if err != nil {
		t.Fatalf("record not at %s: %v", path, err)
	}
	r, err := decodeRecord(fpA, data)
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if !r.CreatedAt.Equal(now) || !r.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", r.CreatedAt, r.UpdatedAt, now)
	}

	// No temp files are left behind.
	entries, err := afero.ReadDir(memFs, filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("record directory has %d files, want 1", len(entries))
	}

	// Overwriting keeps the creation time.
	now = now.Add(time.Hour)
	if _, err := s.Set(fpA, secondEntry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, err = afero.ReadFile(memFs, path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	r, err = decodeRecord(fpA, data)
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if !r.CreatedAt.Equal(fixedNowFunc()) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, fixedNowFunc())
	}
	if !r.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", r.UpdatedAt, now)
	}
}

func TestFileStore_Corruption(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "truncated JSON", content: `{"fingerprint": "0123456789ABCDEF", "items": [`},
		{name: "wrong fingerprint", content: `{"fingerprint": "FEDCBA9876543210", "items": [], "status": 0}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			memFs := afero.NewMemMapFs()
			s, err := openFileStore(memFs, StoreDir(projectRoot), fixedNowFunc)
			if err != nil {
				t.Fatalf("openFileStore() error = %v", err)
			}
			writeFile(t, memFs, s.recordPath(fpA), tc.content)

			got, err := s.Get(fpA)
			if err == nil {
				t.Fatalf("Get() = %s, want error", spew.Sdump(got))
			}
			if KindOf(err) != StoreIO {
				t.Fatalf("Get() error kind = %v, want %v", KindOf(err), StoreIO)
			}
			if !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("Get() error = %v, want wrapped ErrCorruptRecord", err)
			}

			// A corrupted record is replaced by the next write.
			prev, err := s.Set(fpA, firstEntry)
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if prev != nil {
				t.Errorf("Set() over corrupted record = %s, want nil", spew.Sdump(prev))
			}
			got, err = s.Get(fpA)
			if err != nil {
				t.Fatalf("Get() after repair error = %v", err)
			}
			assertEntry(t, got, firstEntry, "Get after repair")
		})
	}
}

func TestFileStore_InitError(t *testing.T) {
	t.Run("file in the way", func(t *testing.T) {
		root := t.TempDir()
		osFs := afero.NewOsFs()
		// A file where the cache directory should be.
		writeFile(t, osFs, filepath.Join(root, CacheDir), "not a directory")

		_, err := openFileStore(osFs, StoreDir(root), fixedNowFunc)
		if KindOf(err) != StoreInit {
			t.Fatalf("openFileStore() error = %v, want StoreInit", err)
		}
	})

	t.Run("read-only filesystem", func(t *testing.T) {
		_, err := openFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), StoreDir(projectRoot), fixedNowFunc)
		if KindOf(err) != StoreInit {
			t.Fatalf("openFileStore() error = %v, want StoreInit", err)
		}
	})
}

func TestFileStore_WriteError(t *testing.T) {
	memFs := afero.NewMemMapFs()
	s, err := openFileStore(failingCreateFs{Fs: memFs}, StoreDir(projectRoot), fixedNowFunc)
	if err != nil {
		t.Fatalf("openFileStore() error = %v", err)
	}

	prev, err := s.Set(fpA, firstEntry)
	if KindOf(err) != StoreIO {
		t.Fatalf("Set() error = %v, want StoreIO", err)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("Set() error = %v, want wrapped errInjected", err)
	}
	if prev != nil {
		t.Errorf("Set() = %s, want nil", spew.Sdump(prev))
	}

	// A failed write leaves no record behind.
	got, err := s.Get(fpA)
	if err != nil || got != nil {
		t.Fatalf("Get() = %v, %v, want miss", got, err)
	}
}

func TestStore_InvalidMessage(t *testing.T) {
	for backend, open := range storeBackends(t) {
		t.Run(string(backend), func(t *testing.T) {
			s := open(t)
			if _, err := s.Set(fpA, firstEntry); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			bad := Entry{Items: []Item{{Status: 0, Message: "ok"}, {Status: 1, Message: "bad\xffbyte"}}, Status: 1}
			prev, err := s.Set(fpA, bad)
			if KindOf(err) != StoreIO || !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("Set() error = %v, want StoreIO wrapping ErrInvalidMessage", err)
			}
			if prev != nil {
				t.Errorf("Set() = %s, want nil", spew.Sdump(prev))
			}

			// The rejected entry leaves the stored one untouched.
			got, err := s.Get(fpA)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			assertEntry(t, got, firstEntry, "Get after rejected Set")
		})
	}
}

func TestFileStore_UnreadablePrevious(t *testing.T) {
	memFs := afero.NewMemMapFs()
	s, err := openFileStore(memFs, StoreDir(projectRoot), fixedNowFunc)
	if err != nil {
		t.Fatalf("openFileStore() error = %v", err)
	}
	if _, err := s.Set(fpA, firstEntry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s.fs = failingOpenFs{Fs: memFs, fail: s.recordPath(fpA)}
	prev, err := s.Set(fpA, secondEntry)
	if KindOf(err) != StoreIO || !errors.Is(err, errInjected) {
		t.Fatalf("Set() error = %v, want StoreIO wrapping errInjected", err)
	}
	if prev != nil {
		t.Errorf("Set() = %s, want nil", spew.Sdump(prev))
	}

	// The record that could not be read was not overwritten.
	s.fs = memFs
	got, err := s.Get(fpA)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertEntry(t, got, firstEntry, "Get after failed Set")
}

func TestBoltStore_InProcessLock(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Chdir(root)

	relative, err := boltPath(StoreDir("."))
	if err != nil {
		t.Fatalf("boltPath() error = %v", err)
	}
	absolute, err := boltPath(StoreDir(root))
	if err != nil {
		t.Fatalf("boltPath() error = %v", err)
	}
	if relative != absolute {
		t.Fatalf("boltPath() = %q and %q for the same directory", relative, absolute)
	}

	held, err := openBoltStore(StoreDir("."), time.Second, fixedNowFunc)
	if err != nil {
		t.Fatalf("openBoltStore() error = %v", err)
	}

	// A second handle in this process gives up after its timeout.
	start := time.Now()
	_, err = openBoltStore(StoreDir(root), 50*time.Millisecond, fixedNowFunc)
	if KindOf(err) != StoreInit || !errors.Is(err, berrors.ErrTimeout) {
		t.Fatalf("openBoltStore() error = %v, want StoreInit wrapping ErrTimeout", err)
	}
	if waited := time.Since(start); waited > 5*time.Second {
		t.Errorf("openBoltStore() waited %s with a 50ms timeout", waited)
	}

	// Released within the timeout, it succeeds.
	done := make(chan error, 1)
	go func() {
		s, err := openBoltStore(StoreDir(root), 5*time.Second, fixedNowFunc)
		if err == nil {
			err = s.Close()
		}
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := held.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("openBoltStore() after release error = %v", err)
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	dir := StoreDir(t.TempDir())

	s, err := openBoltStore(dir, time.Second, fixedNowFunc)
	if err != nil {
		t.Fatalf("openBoltStore() error = %v", err)
	}
	if _, err := s.Set(fpA, firstEntry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = openBoltStore(dir, time.Second, fixedNowFunc)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(fpA)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assertEntry(t, got, firstEntry, "Get after reopen")
}

func TestParseBackend(t *testing.T) {
	testCases := []struct {
		input   string
		want    Backend
		wantErr bool
	}{
		{input: "", want: BackendFile},
		{input: "file", want: BackendFile},
		{input: " Bolt ", want: BackendBolt},
		{input: "redis", wantErr: true},
	}

	for _, tc := range testCases {
		got, err := ParseBackend(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseBackend(%q) = %s, want error", tc.input, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseBackend(%q) = %s, %v, want %s", tc.input, got, err, tc.want)
		}
	}
}
