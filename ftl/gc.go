package ftl

import (
	"log/slog"

	"github.com/YaPish/diploma-file-system/status"
)

// sectorPBIRange converts a sector's PBA borders into the PBI range it
// covers in the mapping table.
func (f *FTL) sectorPBIRange(sector int) (start, end int, code status.Code) {
	lo, hi, code := f.dev.SectorBorders(sector)
	if code != status.NoError {
		return 0, 0, code
	}
	return int((lo - f.base) / BlockSize), int((hi - f.base) / BlockSize), status.NoError
}

// allocateFreeOutside finds a Free physical block outside [excludeStart,
// excludeEnd).
func (f *FTL) allocateFreeOutside(excludeStart, excludeEnd int) (pbi int, ok bool) {
	for i, found := f.nonFree.NextClear(0); found && int(i) < BlockCount; i, found = f.nonFree.NextClear(i + 1) {
		if int(i) >= excludeStart && int(i) < excludeEnd {
			continue
		}
		return int(i), true
	}
	return 0, false
}

// GarbageCollect iterates sectors 2..11. A sector with no Dirty frames is
// left untouched. A sector with at least one Dirty frame has every Valid
// frame it holds evacuated to a Free block elsewhere first (the redesign
// fix over the original source, which erased without evacuating live
// data), then the entire sector is erased and every block in its range is
// marked Free in the mapping table.
func (f *FTL) GarbageCollect() status.Code {
	for sector := firstSector; sector <= lastSector; sector++ {
		start, end, code := f.sectorPBIRange(sector)
		if code != status.NoError {
			return code
		}

		hasDirty := false
		for pbi := start; pbi < end; pbi++ {
			if f.table[pbi].Flag == FlagDirty {
				hasDirty = true
				break
			}
		}
		if !hasDirty {
			continue
		}

		for pbi := start; pbi < end; pbi++ {
			if f.table[pbi].Flag != FlagValid {
				continue
			}
			newPBI, ok := f.allocateFreeOutside(start, end)
			if !ok {
				f.warn("ftl: gc found no free block to evacuate into")
				return status.OperationFailed
			}
			frame := make([]byte, BlockSize)
			if code := f.dev.Read(f.pba(pbi), frame); code != status.NoError {
				return code
			}
			if code := f.dev.Write(f.pba(newPBI), frame); code != status.NoError {
				return code
			}
			f.table[newPBI] = f.table[pbi]
			f.syncBits(newPBI)
			f.trace("ftl: gc evacuated valid block", slog.Int("from", pbi), slog.Int("to", newPBI))
		}

		if code := f.dev.SectorErase(sector); code != status.NoError {
			return code
		}
		for pbi := start; pbi < end; pbi++ {
			f.table[pbi] = descriptor{Flag: FlagFree}
			f.syncBits(pbi)
		}
		f.debug("ftl: gc erased sector", slog.Int("sector", sector))
	}
	return status.NoError
}
