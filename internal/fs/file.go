package fs

import (
	"io"
	"os"
)

// File is the byte-addressable backing store the checker operates on:
// a filesystem image or a raw disk device, addressed by absolute byte
// offset. All reads and writes the checker issues are sector-aligned.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Stat() (os.FileInfo, error)
}
