package flash

// Access is a requested or granted permission level.
type Access int

const (
	AccessSupervisor Access = iota
	AccessReadOnly
	AccessReadWrite
)

// Mode is the device-wide privilege level gating every mutation.
type Mode int

const (
	ModeSupervisor Mode = iota
	ModeUser
)

// SectorCount is the number of sectors partitioning the address space.
const SectorCount = 12

// Capacity is the total size of the backing store.
const Capacity = 1 << 20 // 1 MiB

// BaseAddress is the hardware-style base address sector 0 starts at. All
// on-media PBAs are absolute addresses in this space; Device translates
// them to backing-store offsets by subtracting BaseAddress.
const BaseAddress = 0x08000000

// sectorAddresses holds the SectorCount+1 sector boundaries, bit-for-bit
// as specified (must match the reference deployment's addresses).
var sectorAddresses = [SectorCount + 1]uint32{
	0x08000000, 0x08004000, 0x08008000, 0x0800C000,
	0x08010000, 0x08020000, 0x08040000, 0x08060000,
	0x08080000, 0x080A0000, 0x080C0000, 0x080E0000,
	0x08100000,
}

// defaultPermissions is the factory-default per-sector access level: S0
// supervisor-only, S1 read-only, S2..S11 read-write.
var defaultPermissions = [SectorCount]Access{
	AccessSupervisor, AccessReadOnly,
	AccessReadWrite, AccessReadWrite, AccessReadWrite, AccessReadWrite,
	AccessReadWrite, AccessReadWrite, AccessReadWrite, AccessReadWrite,
	AccessReadWrite, AccessReadWrite,
}

// Sector is one entry of the flash header's sector table.
type Sector struct {
	PBA        uint32
	Permission Access
	Wear       uint32
	CRC32      uint32
}

// sectorSize returns the byte size of sector id.
func sectorSize(id int) uint32 {
	return sectorAddresses[id+1] - sectorAddresses[id]
}
