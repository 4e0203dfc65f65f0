package flashfs

import (
	"encoding/binary"

	"github.com/YaPish/diploma-file-system/status"
)

// SuperblockMagic identifies a formatted filesystem.
const SuperblockMagic = 0x46534653

func readSuperblockMagic(b Backend) (uint32, status.Code) {
	buf, code := readBlock(b, lbiSuperblock)
	if code != status.NoError {
		return 0, code
	}
	return binary.LittleEndian.Uint32(buf[:4]), status.NoError
}

func writeSuperblock(b Backend) status.Code {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(buf[:4], SuperblockMagic)
	return writeBlock(b, lbiSuperblock, buf)
}
