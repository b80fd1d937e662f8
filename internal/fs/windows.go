//go:build windows
// +build windows

// Copyright (c) 2025 The chkfat authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package fs

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
	"unsafe"

	"github.com/spf13/afero"
	"golang.org/x/sys/windows"
)

// Open opens an image file through afero, or a raw volume (\\.\C: style
// paths) through CreateFile. Raw volume I/O must be sector-aligned; every
// access the checker issues is.
func Open(afs afero.Fs, path string, readOnly bool) (File, error) {
	if !strings.HasPrefix(path, `\\.\`) {
		flag := os.O_RDWR
		if readOnly {
			flag = os.O_RDONLY
		}
		return afs.OpenFile(path, flag, 0)
	}

	access := uint32(windows.GENERIC_READ)
	if !readOnly {
		access |= windows.GENERIC_WRITE
	}

	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return &volumeFile{handle: handle}, nil
}

// NormalizePath turns drive-letter paths like "C:" into the raw volume
// form \\.\C: expected by CreateFile. Other paths pass through unchanged.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "/", `\`)
	upper := strings.ToUpper(path)

	if strings.HasPrefix(upper, `\\.\`) {
		return upper
	}
	if len(upper) >= 2 && upper[1] == ':' && unicode.IsLetter(rune(upper[0])) &&
		(len(upper) == 2 || upper[2:] == `\`) {
		return `\\.\` + string(upper[0]) + `:`
	}
	return path
}

type volumeFile struct {
	handle windows.Handle
}

func (d *volumeFile) ReadAt(p []byte, off int64) (int, error) {
	var done uint32
	ov := new(windows.Overlapped)
	ov.Offset = uint32(off)
	ov.OffsetHigh = uint32(off >> 32)

	if err := windows.ReadFile(d.handle, p, &done, ov); err != nil {
		return int(done), fmt.Errorf("volume read at %d failed: %w", off, err)
	}
	if int(done) < len(p) {
		return int(done), fmt.Errorf("volume short read at %d: %d of %d bytes", off, done, len(p))
	}
	return int(done), nil
}

func (d *volumeFile) WriteAt(p []byte, off int64) (int, error) {
	var done uint32
	ov := new(windows.Overlapped)
	ov.Offset = uint32(off)
	ov.OffsetHigh = uint32(off >> 32)

	if err := windows.WriteFile(d.handle, p, &done, ov); err != nil {
		return int(done), fmt.Errorf("volume write at %d failed: %w", off, err)
	}
	if int(done) < len(p) {
		return int(done), fmt.Errorf("volume short write at %d: %d of %d bytes", off, done, len(p))
	}
	return int(done), nil
}

type volumeInfo struct {
	size int64
}

func (fi *volumeInfo) Name() string       { return "" }
func (fi *volumeInfo) Size() int64        { return fi.size }
func (fi *volumeInfo) Mode() os.FileMode  { return 0 }
func (fi *volumeInfo) ModTime() time.Time { return time.Time{} }
func (fi *volumeInfo) IsDir() bool        { return false }
func (fi *volumeInfo) Sys() interface{}   { return nil }

type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

const ioctlDiskGetDriveGeometry = 0x70000

func (d *volumeFile) Stat() (os.FileInfo, error) {
	var geometry diskGeometry
	var returned uint32

	err := windows.DeviceIoControl(
		d.handle,
		ioctlDiskGetDriveGeometry,
		nil,
		0,
		(*byte)(unsafe.Pointer(&geometry)),
		uint32(unsafe.Sizeof(geometry)),
		&returned,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("DeviceIoControl(IOCTL_DISK_GET_DRIVE_GEOMETRY) failed: %w", err)
	}

	size := geometry.Cylinders * int64(geometry.TracksPerCylinder) *
		int64(geometry.SectorsPerTrack) * int64(geometry.BytesPerSector)
	return &volumeInfo{size: size}, nil
}

func (d *volumeFile) Close() error {
	return windows.CloseHandle(d.handle)
}
