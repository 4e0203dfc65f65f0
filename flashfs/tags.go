package flashfs

import "github.com/YaPish/diploma-file-system/status"

// tagName is a fixed-size tag-name slot. An all-zero name means the slot
// is unused.
type tagName [TagNameSize]byte

func (n tagName) String() string {
	end := 0
	for end < len(n) && n[end] != 0 {
		end++
	}
	return string(n[:end])
}

func makeTagName(s string) tagName {
	var n tagName
	copy(n[:], s)
	return n
}

func loadTagNames(b Backend) ([TagCount]tagName, status.Code) {
	var names [TagCount]tagName
	idx := 0
	for blk := 0; blk < lbiTagCount; blk++ {
		block, code := readBlock(b, lbiTagStart+blk)
		if code != status.NoError {
			return names, code
		}
		for i := 0; i < tagsPerBlock && idx < TagCount; i++ {
			off := i * TagNameSize
			copy(names[idx][:], block[off:off+TagNameSize])
			idx++
		}
	}
	return names, status.NoError
}

// persistTagNames rewrites all four tag blocks, mirroring the bitmap's
// always-rewrite-the-whole-table convention.
func persistTagNames(b Backend, names [TagCount]tagName) status.Code {
	idx := 0
	for blk := 0; blk < lbiTagCount; blk++ {
		block := make([]byte, BlockSize)
		for i := 0; i < tagsPerBlock && idx < TagCount; i++ {
			off := i * TagNameSize
			copy(block[off:off+TagNameSize], names[idx][:])
			idx++
		}
		if code := writeBlock(b, lbiTagStart+blk, block); code != status.NoError {
			return code
		}
	}
	return status.NoError
}
