package flashfs

import "github.com/YaPish/diploma-file-system/status"

func fileNameBlock(id int) (block, offset int) {
	return lbiNameStart + id/namesPerBlock, (id % namesPerBlock) * NameSize
}

func readFileName(b Backend, id int) ([NameSize]byte, status.Code) {
	var name [NameSize]byte
	blk, off := fileNameBlock(id)
	block, code := readBlock(b, blk)
	if code != status.NoError {
		return name, code
	}
	copy(name[:], block[off:off+NameSize])
	return name, status.NoError
}

func writeFileName(b Backend, id int, name [NameSize]byte) status.Code {
	blk, off := fileNameBlock(id)
	block, code := readBlock(b, blk)
	if code != status.NoError {
		return code
	}
	copy(block[off:off+NameSize], name[:])
	return writeBlock(b, blk, block)
}

func nameString(n [NameSize]byte) string {
	end := 0
	for end < len(n) && n[end] != 0 {
		end++
	}
	return string(n[:end])
}

func makeFileName(s string) ([NameSize]byte, status.Code) {
	var n [NameSize]byte
	if len(s) == 0 || len(s) > NameSize {
		return n, status.InvalidParam
	}
	copy(n[:], s)
	return n, status.NoError
}
