package compcache

import (
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/spf13/afero"
)

// Default size for the buffer used when hashing files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// hashReader streams content into h using a pooled buffer.
func hashReader(content io.Reader, h hash.Hash) error {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, content, buffer); err != nil {
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return nil
}

// hashFile streams the file at path into h without loading it whole.
func hashFile(fs afero.Fs, path string, h hash.Hash) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return hashReader(f, h)
}

// formatFingerprint renders a 64-bit digest as 16 upper-case hex digits.
func formatFingerprint(sum uint64) Fingerprint {
	return Fingerprint(fmt.Sprintf("%016X", sum))
}
