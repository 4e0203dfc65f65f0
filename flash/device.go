// Package flash implements the sector manager (C2): a fixed 12-sector
// address table over a byte-addressable backing store, access-mode and
// per-sector permission enforcement, whole-sector erase with wear
// accounting, and CRC-protected sector/header metadata.
package flash

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/YaPish/diploma-file-system/status"
)

// Backing is the byte-addressable store flash.Device reads and writes.
// Offsets are relative to the start of the store (not to BaseAddress).
// internal/emulator.Emulator implements this interface over a
// memory-mapped file.
type Backing interface {
	ReadAt(offset int, dst []byte) error
	WriteAt(offset int, src []byte) error
}

// Device is the flash sector manager. The zero value is not usable; build
// one with Open.
type Device struct {
	backing Backing
	header  Header
	log     *slog.Logger
}

// Option configures a Device at construction time.
type Option func(*Device)

// WithLogger attaches a structured logger. Without one, Device logs
// nothing.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = l }
}

const slogLevelTrace = slog.LevelDebug - 2

func (d *Device) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
func (d *Device) trace(msg string, attrs ...slog.Attr) { d.logattrs(slogLevelTrace, msg, attrs...) }
func (d *Device) debug(msg string, attrs ...slog.Attr) { d.logattrs(slog.LevelDebug, msg, attrs...) }
func (d *Device) warn(msg string, attrs ...slog.Attr)  { d.logattrs(slog.LevelWarn, msg, attrs...) }

// offset converts an absolute PBA into a backing-store byte offset.
func offset(pba uint32) int {
	return int(pba - BaseAddress)
}

// Open wires a Device to backing and runs Init over it.
func Open(backing Backing, opts ...Option) (*Device, error) {
	d := &Device{backing: backing}
	for _, opt := range opts {
		opt(d)
	}
	if code := d.Init(); code != status.NoError {
		return nil, code
	}
	return d, nil
}

// Init reads the flash header from sector 1. If its magic mismatches, it
// initializes every sector record with default permissions and
// wear=0, admits each, erases sectors 1..11 (sector 0 is reserved for
// system code and is never erased here), then switches to User mode.
func (d *Device) Init() status.Code {
	buf := make([]byte, headerSize)
	if err := d.backing.ReadAt(offset(sectorAddresses[1]), buf); err != nil {
		d.warn("flash: init read failed", slog.Any("err", err))
		return status.OperationFailed
	}
	hdr := decodeHeader(buf)

	if hdr.Magic != HeaderMagic {
		d.debug("flash: header invalid, formatting")
		d.header = Header{Magic: HeaderMagic, Mode: ModeSupervisor}
		for i := 0; i < SectorCount; i++ {
			d.header.Sectors[i] = Sector{
				PBA:        sectorAddresses[i],
				Permission: defaultPermissions[i],
				Wear:       0,
			}
			admitSector(&d.header.Sectors[i])
		}
		for s := 1; s < SectorCount; s++ {
			if code := d.eraseSectorRaw(s); code != status.NoError {
				return code
			}
		}
	} else {
		d.header = hdr
	}

	return d.setMode(ModeUser)
}

// Free switches to Supervisor mode, erases sector 1, and writes the
// current header back into it.
func (d *Device) Free() status.Code {
	if code := d.setMode(ModeSupervisor); code != status.NoError {
		return code
	}
	if code := d.eraseSectorRaw(1); code != status.NoError {
		return code
	}
	admitHeader(&d.header)
	if err := d.writeHeader(); err != nil {
		d.warn("flash: teardown header write failed", slog.Any("err", err))
		return status.OperationFailed
	}
	return status.NoError
}

func (d *Device) writeHeader() error {
	return errors.Wrap(d.backing.WriteAt(offset(sectorAddresses[1]), encodeHeader(&d.header)), "write flash header")
}

// setMode switches the device mode. Entering User mode requires every
// sector CRC to currently validate; the header CRC is then recomputed and
// stored.
func (d *Device) setMode(m Mode) status.Code {
	if m == ModeUser {
		for i := range d.header.Sectors {
			if !validateSector(&d.header.Sectors[i]) {
				d.warn("flash: sector CRC invalid, cannot enter user mode", slog.Int("sector", i))
				return status.OperationFailed
			}
		}
	}
	d.header.Mode = m
	admitHeader(&d.header)
	if err := d.writeHeader(); err != nil {
		d.warn("flash: mode-set header write failed", slog.Any("err", err))
		return status.OperationFailed
	}
	return status.NoError
}

// Mode reports the current device mode.
func (d *Device) Mode() Mode { return d.header.Mode }

// SectorBorders returns the [start, end) PBA range of sector id.
func (d *Device) SectorBorders(id int) (start, end uint32, code status.Code) {
	if id < 0 || id >= SectorCount {
		return 0, 0, status.InvalidParam
	}
	return sectorAddresses[id], sectorAddresses[id+1], status.NoError
}

// SectorFind performs a binary search for the sector containing pba.
func (d *Device) SectorFind(pba uint32) (id int, code status.Code) {
	if pba < sectorAddresses[0] || pba >= sectorAddresses[SectorCount] {
		return 0, status.OperationFailed
	}
	lo, hi := 0, SectorCount-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if pba < sectorAddresses[mid] {
			hi = mid - 1
		} else if pba >= sectorAddresses[mid+1] {
			lo = mid + 1
		} else {
			return mid, status.NoError
		}
	}
	return 0, status.OperationFailed
}

// verify enforces the access discipline: in Supervisor mode everything
// passes; in User mode, access a on sector s is permitted iff
// a <= sector[s].Permission and a != Supervisor.
func (d *Device) verify(id int, required Access) status.Code {
	if d.header.Mode == ModeSupervisor {
		return status.NoError
	}
	if required == AccessSupervisor {
		return status.AccessDenied
	}
	if required > d.header.Sectors[id].Permission {
		return status.AccessDenied
	}
	return status.NoError
}

func aligned4(n int) bool { return n%4 == 0 }

// Read copies size bytes from pba into dst. dst must have length size.
// pba, the caller's intended alignment, and size must all be 4-byte
// aligned.
func (d *Device) Read(pba uint32, dst []byte) status.Code {
	if !aligned4(int(pba)) || !aligned4(len(dst)) {
		return status.InvalidParam
	}
	id, code := d.SectorFind(pba)
	if code != status.NoError {
		return code
	}
	start, end, _ := d.SectorBorders(id)
	if pba < start || uint64(pba)+uint64(len(dst)) > uint64(end) {
		return status.OperationFailed
	}
	if err := d.backing.ReadAt(offset(pba), dst); err != nil {
		d.warn("flash: read failed", slog.Any("err", err))
		return status.OperationFailed
	}
	return status.NoError
}

// requiredAccessFor returns the access level a write call must hold,
// depending on the device's current global mode: Supervisor-mode callers
// must themselves request Supervisor access, User-mode callers must hold
// ReadWrite.
func (d *Device) requiredAccessFor() Access {
	if d.header.Mode == ModeSupervisor {
		return AccessSupervisor
	}
	return AccessReadWrite
}

// Write copies src into pba. Every target byte must currently read 0xFF
// (erase-before-write); pba and len(src) must be 4-byte aligned.
func (d *Device) Write(pba uint32, src []byte) status.Code {
	if !aligned4(int(pba)) || !aligned4(len(src)) {
		return status.InvalidParam
	}
	id, code := d.SectorFind(pba)
	if code != status.NoError {
		return code
	}
	start, end, _ := d.SectorBorders(id)
	if pba < start || uint64(pba)+uint64(len(src)) > uint64(end) {
		return status.OperationFailed
	}
	if code := d.verify(id, d.requiredAccessFor()); code != status.NoError {
		return code
	}

	existing := make([]byte, len(src))
	if err := d.backing.ReadAt(offset(pba), existing); err != nil {
		d.warn("flash: write pre-read failed", slog.Any("err", err))
		return status.OperationFailed
	}
	for _, b := range existing {
		if b != 0xFF {
			return status.OperationFailed
		}
	}

	if err := d.backing.WriteAt(offset(pba), src); err != nil {
		d.warn("flash: write failed", slog.Any("err", err))
		return status.OperationFailed
	}
	return status.NoError
}

// eraseSectorRaw erases a sector without the access check SectorErase
// performs, used internally during Init/Free before User mode exists.
func (d *Device) eraseSectorRaw(id int) status.Code {
	start, end, _ := d.SectorBorders(id)
	blank := make([]byte, end-start)
	for i := range blank {
		blank[i] = 0xFF
	}
	if err := d.backing.WriteAt(offset(start), blank); err != nil {
		d.warn("flash: erase failed", slog.Any("err", err))
		return status.OperationFailed
	}
	d.header.Sectors[id].Wear++
	admitSector(&d.header.Sectors[id])
	return status.NoError
}

// SectorErase requires ReadWrite on sector id. It fills the sector with
// 0xFF, increments wear, temporarily elevates to Supervisor to admit the
// sector's CRC, then restores the prior mode (which re-validates).
func (d *Device) SectorErase(id int) status.Code {
	if id < 0 || id >= SectorCount {
		return status.InvalidParam
	}
	if code := d.verify(id, AccessReadWrite); code != status.NoError {
		return code
	}
	priorMode := d.header.Mode
	if code := d.eraseSectorRaw(id); code != status.NoError {
		return code
	}
	if code := d.setMode(ModeSupervisor); code != status.NoError {
		return code
	}
	return d.setMode(priorMode)
}
