package flashfs

import (
	"io"

	"github.com/pkg/errors"

	"github.com/YaPish/diploma-file-system/crcx"
	"github.com/YaPish/diploma-file-system/status"
)

// File is an open-file handle returned by FS.Open. It is not safe for
// concurrent use.
type File struct {
	fs   *FS
	slot int
}

func (fl *File) descriptor() *fileDescriptor {
	return &fl.fs.desc[fl.slot]
}

// Status returns the file's live size, position, mode and tag bitmap.
func (fl *File) Status() FileStatus {
	return fl.descriptor().Status
}

// blockAt walks the file's chain starting at its first block and returns
// the LBI holding byte offset off. It does not allocate; if the chain
// ends before reaching off, ok is false.
func (fl *File) blockAt(off int) (lbi uint16, inBlock int, ok bool) {
	d := fl.descriptor()
	cur := d.Header.LBIStart
	n := off / DataSize
	for i := 0; i < n; i++ {
		next, _, code := readChainBlock(fl.fs.dev, int(cur))
		if code != status.NoError || chainEnded(next) {
			return 0, 0, false
		}
		cur = next
	}
	return cur, off % DataSize, true
}

// Read implements io.Reader, reading from the file's current position.
func (fl *File) Read(p []byte) (int, error) {
	d := fl.descriptor()
	pos := int(d.Status.Position)
	remaining := int(d.Status.Size) - pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	want := len(p)
	if want > remaining {
		want = remaining
	}

	n := 0
	for n < want {
		lbi, inBlock, ok := fl.blockAt(pos + n)
		if !ok {
			break
		}
		next, payload, code := readChainBlock(fl.fs.dev, int(lbi))
		if code != status.NoError {
			return n, errors.Wrap(code, "read: chain block")
		}
		avail := DataSize - inBlock
		chunk := want - n
		if chunk > avail {
			chunk = avail
		}
		copy(p[n:n+chunk], payload[inBlock:inBlock+chunk])
		n += chunk
		if chunk == avail && chainEnded(next) && n < want {
			break
		}
	}

	d.Status.Position += int32(n)
	if n < len(p) && n == remaining {
		return n, io.EOF
	}
	return n, nil
}

// Write implements io.Writer, writing at the file's current position and
// extending the chain (and the reported Size) as needed.
func (fl *File) Write(p []byte) (int, error) {
	d := fl.descriptor()
	if d.Status.Mode != ModeReadWrite {
		return 0, ErrPermission
	}
	pos := int(d.Status.Position)
	if uint32(pos+len(p)) > maxFileSize {
		return 0, ErrFileSize
	}

	n := 0
	for n < len(p) {
		lbi, inBlock, ok := fl.blockAt(pos + n)
		if !ok {
			newLBI, allocErr := fl.extendChain()
			if allocErr != nil {
				return n, allocErr
			}
			lbi = newLBI
			inBlock = (pos + n) % DataSize
		}

		next, payload, code := readChainBlock(fl.fs.dev, int(lbi))
		if code != status.NoError {
			return n, errors.Wrap(code, "write: chain block")
		}
		avail := DataSize - inBlock
		chunk := len(p) - n
		if chunk > avail {
			chunk = avail
		}
		copy(payload[inBlock:inBlock+chunk], p[n:n+chunk])
		if code := writeChainBlock(fl.fs.dev, int(lbi), next, payload); code != status.NoError {
			return n, errors.Wrap(code, "write: persist chain block")
		}
		n += chunk
	}

	d.Status.Position += int32(n)
	if newSize := uint32(pos + n); newSize > d.Status.Size {
		d.Status.Size = newSize
	}
	return n, nil
}

// extendChain allocates a fresh data block and links it onto the current
// end of the file's chain (every file has at least one block from
// Create, so a tail always exists).
func (fl *File) extendChain() (uint16, error) {
	d := fl.descriptor()

	tail := d.Header.LBIStart
	for {
		next, _, code := readChainBlock(fl.fs.dev, int(tail))
		if code != status.NoError {
			return 0, errors.Wrap(code, "extend chain: walk to tail")
		}
		if chainEnded(next) {
			break
		}
		tail = next
	}

	lbi, ok := fl.fs.allocateBlock()
	if !ok {
		return 0, ErrNoSpace
	}
	if code := writeChainBlock(fl.fs.dev, lbi, endOfChain, make([]byte, DataSize)); code != status.NoError {
		return 0, errors.Wrap(code, "extend chain: write new block")
	}
	fl.fs.bm.set(lbi, BlockUsed)
	if code := persistBitmap(fl.fs.dev, fl.fs.bm); code != status.NoError {
		return 0, errors.Wrap(code, "extend chain: persist bitmap")
	}

	_, tailPayload, code := readChainBlock(fl.fs.dev, int(tail))
	if code != status.NoError {
		return 0, errors.Wrap(code, "extend chain: read tail")
	}
	if code := writeChainBlock(fl.fs.dev, int(tail), uint16(lbi), tailPayload); code != status.NoError {
		return 0, errors.Wrap(code, "extend chain: link tail")
	}
	return uint16(lbi), nil
}

// Seek implements io.Seeker. A resulting position outside [0, Size] is
// rejected with ErrOverflow and the current position is left unchanged.
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	d := fl.descriptor()
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(d.Status.Position)
	case io.SeekEnd:
		base = int64(d.Status.Size)
	default:
		return 0, ErrInvalidParam
	}
	newPos := base + offset
	if newPos < 0 || newPos > int64(d.Status.Size) {
		return 0, ErrOverflow
	}
	d.Status.Position = int32(newPos)
	return newPos, nil
}

// Close frees the descriptor slot. For a file opened read-write it first
// rewrites the header with the current size, tag bitmap and content CRC,
// whether or not they changed while open.
func (fl *File) Close() error {
	d := fl.descriptor()
	if d.Status.Mode == ModeReadWrite {
		h := d.Header
		h.Size = d.Status.Size
		h.Tags = d.Status.Tags
		h.CRC32 = fl.contentCRC()
		if code := writeHeader(fl.fs.dev, int(d.ID), h); code != status.NoError {
			return errors.Wrap(code, "close: write header")
		}
	}
	fl.fs.desc[fl.slot] = freeDescriptor()
	return nil
}

// contentCRC computes the CRC-32 of the file's full content by walking
// its chain from the start.
func (fl *File) contentCRC() uint32 {
	d := fl.descriptor()
	buf := make([]byte, 0, d.Status.Size)
	lbi := d.Header.LBIStart
	remaining := int(d.Status.Size)
	for remaining > 0 {
		next, payload, code := readChainBlock(fl.fs.dev, int(lbi))
		if code != status.NoError {
			break
		}
		chunk := remaining
		if chunk > DataSize {
			chunk = DataSize
		}
		buf = append(buf, payload[:chunk]...)
		remaining -= chunk
		if chainEnded(next) {
			break
		}
		lbi = next
	}
	return crcx.CRC32(buf)
}
