package flashfs

import "github.com/YaPish/diploma-file-system/status"

// Backend is the subset of ftl.FTL the filesystem driver depends on.
type Backend interface {
	Read(lbi uint16, count int, data []byte) status.Code
	Write(lbi uint16, count int, data []byte) status.Code
	GarbageCollect() status.Code
	Free() status.Code
}

func readBlock(b Backend, lbi int) ([]byte, status.Code) {
	buf := make([]byte, BlockSize)
	if code := b.Read(uint16(lbi), 1, buf); code != status.NoError && code != status.NoAction {
		return nil, code
	}
	return buf, status.NoError
}

func writeBlock(b Backend, lbi int, data []byte) status.Code {
	return b.Write(uint16(lbi), 1, data)
}
