package flash

import (
	"encoding/binary"

	"github.com/YaPish/diploma-file-system/crcx"
)

// HeaderMagic identifies a valid flash header.
const HeaderMagic = 0x666C6472

// headerSize is the on-media size of Header: magic(4) + 12*sector(16) +
// mode(4) + crc32(4).
const headerSize = 4 + SectorCount*sectorOnDiskSize + 4 + 4

// sectorOnDiskSize is the on-media size of one Sector record: pba(4) +
// permission(4) + wear(4) + crc32(4).
const sectorOnDiskSize = 16

// Header is the flash header persisted at the base of sector 1.
type Header struct {
	Magic   uint32
	Sectors [SectorCount]Sector
	Mode    Mode
	CRC32   uint32
}

// admitSector recomputes and stores s.CRC32 over its non-CRC fields.
func admitSector(s *Sector) {
	s.CRC32 = crcx.CRC32(encodeSectorBody(s))
}

// validateSector reports whether s.CRC32 matches its non-CRC fields.
func validateSector(s *Sector) bool {
	return s.CRC32 == crcx.CRC32(encodeSectorBody(s))
}

func encodeSectorBody(s *Sector) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], s.PBA)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.Permission))
	binary.LittleEndian.PutUint32(buf[8:12], s.Wear)
	return buf
}

func encodeSector(s *Sector) []byte {
	buf := make([]byte, sectorOnDiskSize)
	copy(buf, encodeSectorBody(s))
	binary.LittleEndian.PutUint32(buf[12:16], s.CRC32)
	return buf
}

func decodeSector(buf []byte) Sector {
	return Sector{
		PBA:        binary.LittleEndian.Uint32(buf[0:4]),
		Permission: Access(binary.LittleEndian.Uint32(buf[4:8])),
		Wear:       binary.LittleEndian.Uint32(buf[8:12]),
		CRC32:      binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// admitHeader recomputes and stores h.CRC32 over all preceding fields
// (magic, every sector record including its own CRC, and mode).
func admitHeader(h *Header) {
	h.CRC32 = crcx.CRC32(encodeHeaderBody(h))
}

func validateHeader(h *Header) bool {
	return h.CRC32 == crcx.CRC32(encodeHeaderBody(h))
}

func encodeHeaderBody(h *Header) []byte {
	buf := make([]byte, 4+SectorCount*sectorOnDiskSize+4)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	off := 4
	for i := range h.Sectors {
		copy(buf[off:off+sectorOnDiskSize], encodeSector(&h.Sectors[i]))
		off += sectorOnDiskSize
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h.Mode))
	return buf
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf, encodeHeaderBody(h))
	binary.LittleEndian.PutUint32(buf[headerSize-4:headerSize], h.CRC32)
	return buf
}

func decodeHeader(buf []byte) Header {
	var h Header
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	for i := range h.Sectors {
		h.Sectors[i] = decodeSector(buf[off : off+sectorOnDiskSize])
		off += sectorOnDiskSize
	}
	h.Mode = Mode(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	h.CRC32 = binary.LittleEndian.Uint32(buf[off : off+4])
	return h
}
