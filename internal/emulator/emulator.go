// Package emulator provides a memory-mapped file standing in for the
// 1 MiB NOR-flash-like device the rest of this module addresses.
package emulator

import (
	"syscall"

	"github.com/pkg/errors"
)

// Emulator is a regular file mapped PROT_READ|PROT_WRITE/MAP_SHARED,
// truncated to size on creation. It implements flash.Backing.
type Emulator struct {
	fd   int
	data []byte
}

// Open creates (if needed) and memory-maps path, truncating it to size
// bytes. path is created with mode 0644 if it does not already exist,
// mirroring the reference emulator's open/ftruncate/mmap sequence.
func Open(path string, size int) (*Emulator, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_CREAT, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open backing file")
	}

	if err := syscall.Ftruncate(fd, int64(size)); err != nil {
		_ = syscall.Close(fd)
		return nil, errors.Wrap(err, "truncate backing file")
	}

	data, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = syscall.Close(fd)
		return nil, errors.Wrap(err, "mmap backing file")
	}

	return &Emulator{fd: fd, data: data}, nil
}

// Len reports the mapped region size in bytes.
func (e *Emulator) Len() int {
	return len(e.data)
}

// ReadAt copies len(dst) bytes from the mapped region starting at offset
// into dst.
func (e *Emulator) ReadAt(offset int, dst []byte) error {
	if offset < 0 || offset+len(dst) > len(e.data) {
		return errors.New("emulator: read out of range")
	}
	copy(dst, e.data[offset:offset+len(dst)])
	return nil
}

// WriteAt copies src into the mapped region starting at offset.
func (e *Emulator) WriteAt(offset int, src []byte) error {
	if offset < 0 || offset+len(src) > len(e.data) {
		return errors.New("emulator: write out of range")
	}
	copy(e.data[offset:offset+len(src)], src)
	return nil
}

// Close unmaps the region and closes the file descriptor. Close is
// idempotent; calling it more than once is a no-op after the first call.
func (e *Emulator) Close() error {
	if e.data != nil {
		if err := syscall.Munmap(e.data); err != nil {
			return errors.Wrap(err, "munmap backing file")
		}
		e.data = nil
	}
	if e.fd >= 0 {
		err := syscall.Close(e.fd)
		e.fd = -1
		if err != nil {
			return errors.Wrap(err, "close backing file")
		}
	}
	return nil
}
