package flashfs

import (
	"encoding/binary"

	"github.com/YaPish/diploma-file-system/status"
)

// header is one file's persisted metadata. On-disk size is headerSize
// (25 bytes = 250/10, so 10 headers pack exactly into one logical block);
// 6 trailing bytes are reserved/zero padding beyond the 19 meaningful
// bytes (id, lbiStart, tags, size, crc32).
type header struct {
	ID       uint16
	LBIStart uint16
	Tags     [7]byte
	Size     uint32
	CRC32    uint32
}

func headerBlock(id int) (block, offset int) {
	return lbiHeaderStart + id/headersPerBlock, (id % headersPerBlock) * headerSize
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.ID)
	binary.LittleEndian.PutUint16(buf[2:4], h.LBIStart)
	copy(buf[4:11], h.Tags[:])
	binary.LittleEndian.PutUint32(buf[11:15], h.Size)
	binary.LittleEndian.PutUint32(buf[15:19], h.CRC32)
	return buf
}

func decodeHeader(buf []byte) header {
	var h header
	h.ID = binary.LittleEndian.Uint16(buf[0:2])
	h.LBIStart = binary.LittleEndian.Uint16(buf[2:4])
	copy(h.Tags[:], buf[4:11])
	h.Size = binary.LittleEndian.Uint32(buf[11:15])
	h.CRC32 = binary.LittleEndian.Uint32(buf[15:19])
	return h
}

func readHeader(b Backend, id int) (header, status.Code) {
	blk, off := headerBlock(id)
	block, code := readBlock(b, blk)
	if code != status.NoError {
		return header{}, code
	}
	return decodeHeader(block[off : off+headerSize]), status.NoError
}

func writeHeader(b Backend, id int, h header) status.Code {
	blk, off := headerBlock(id)
	block, code := readBlock(b, blk)
	if code != status.NoError {
		return code
	}
	copy(block[off:off+headerSize], encodeHeader(h))
	return writeBlock(b, blk, block)
}
