package flashfs

import (
	"encoding/binary"

	"github.com/YaPish/diploma-file-system/status"
)

// readChainBlock reads the full BlockSize-byte data block at lbi,
// returning the next-LBI link (big-endian, per the mixed-endianness
// design) and the DataSize-byte payload slice.
func readChainBlock(b Backend, lbi int) (next uint16, payload []byte, code status.Code) {
	block, code := readBlock(b, lbi)
	if code != status.NoError {
		return 0, nil, code
	}
	next = binary.BigEndian.Uint16(block[0:2])
	return next, block[2:], status.NoError
}

// writeChainBlock writes a full data block: the big-endian next-LBI link
// followed by payload, which must be exactly DataSize bytes.
func writeChainBlock(b Backend, lbi int, next uint16, payload []byte) status.Code {
	block := make([]byte, BlockSize)
	binary.BigEndian.PutUint16(block[0:2], next)
	copy(block[2:], payload)
	return writeBlock(b, lbi, block)
}

// chainEnded reports whether next marks the end of a file's block chain.
func chainEnded(next uint16) bool {
	return next == endOfChain || int(next) >= lbiDataEnd
}
