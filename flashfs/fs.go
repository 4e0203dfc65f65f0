package flashfs

import (
	"context"
	"log/slog"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"

	"github.com/YaPish/diploma-file-system/status"
)

// TagInfo describes one named tag slot for TagList.
type TagInfo struct {
	Index int
	Name  string
}

// FS is the filesystem driver (C5): file and tag lifecycle operations on
// top of a Backend, with an in-RAM descriptor table, block bitmap, tag
// table and a bloom filter used as an advisory pre-check before every
// scan of the filename table by name.
type FS struct {
	dev Backend

	bm   *bitmap
	tags [TagCount]tagName
	desc [DescriptorCount]fileDescriptor

	names   *bloom.BloomFilter
	overwrite bool

	log *slog.Logger
}

// Option configures an FS at construction time.
type Option func(*FS)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) { f.log = l }
}

// WithCreateOverwritesExisting controls Create's behavior when the name
// already exists: when set, Create truncates the existing file to empty
// (it does not open it) instead of returning ErrExist.
func WithCreateOverwritesExisting(v bool) Option {
	return func(f *FS) { f.overwrite = v }
}

const slogLevelTrace = slog.LevelDebug - 2

func (f *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if f.log != nil {
		f.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
func (f *FS) trace(msg string, attrs ...slog.Attr) { f.logattrs(slogLevelTrace, msg, attrs...) }
func (f *FS) debug(msg string, attrs ...slog.Attr) { f.logattrs(slog.LevelDebug, msg, attrs...) }
func (f *FS) warn(msg string, attrs ...slog.Attr)  { f.logattrs(slog.LevelWarn, msg, attrs...) }

// New brings up the filesystem over dev: formats it on first boot (invalid
// or absent superblock magic), otherwise loads the existing bitmap, tag
// table and filename index into RAM.
func New(dev Backend, opts ...Option) (*FS, error) {
	f := &FS{dev: dev}
	for _, opt := range opts {
		opt(f)
	}
	for i := range f.desc {
		f.desc[i] = freeDescriptor()
	}

	magic, code := readSuperblockMagic(f.dev)
	if code != status.NoError {
		return nil, errors.Wrap(code, "read superblock")
	}
	if magic != SuperblockMagic {
		f.debug("flashfs: no valid superblock, formatting")
		if err := f.Format(); err != nil {
			return nil, err
		}
	} else if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Close tears down the underlying FTL/flash stack.
func (f *FS) Close() error {
	if code := f.dev.Free(); code != status.NoError {
		return errors.Wrap(code, "close")
	}
	return nil
}

// Format lays down a fresh superblock, marks the metadata region System
// and the data region Free, and clears the tag, filename and header
// tables, running one garbage-collection pass after the filename table and
// another after the header table so the superseded blocks are reclaimed
// before the FTL runs out of free physical blocks.
func (f *FS) Format() error {
	if code := writeSuperblock(f.dev); code != status.NoError {
		return errors.Wrap(code, "write superblock")
	}

	f.bm = newBitmap()
	for lbi := 0; lbi < lbiDataStart; lbi++ {
		f.bm.set(lbi, BlockSystem)
	}
	for lbi := lbiDataStart; lbi < lbiDataEnd; lbi++ {
		f.bm.set(lbi, BlockFree)
	}
	if code := persistBitmap(f.dev, f.bm); code != status.NoError {
		return errors.Wrap(code, "persist bitmap")
	}

	for i := range f.tags {
		f.tags[i] = tagName{}
	}
	if code := persistTagNames(f.dev, f.tags); code != status.NoError {
		return errors.Wrap(code, "persist tag names")
	}

	var empty [NameSize]byte
	for id := 0; id < FileCount; id++ {
		if code := writeFileName(f.dev, id, empty); code != status.NoError {
			return errors.Wrap(code, "clear filename table")
		}
	}
	if code := f.dev.GarbageCollect(); code != status.NoError {
		return errors.Wrap(code, "format gc pass 1")
	}

	for id := 0; id < FileCount; id++ {
		if code := writeHeader(f.dev, id, header{ID: UnsetID}); code != status.NoError {
			return errors.Wrap(code, "clear header table")
		}
	}
	if code := f.dev.GarbageCollect(); code != status.NoError {
		return errors.Wrap(code, "format gc pass 2")
	}

	f.rebuildBloom()
	f.debug("flashfs: formatted")
	return nil
}

// load reads the bitmap and tag table into RAM and rebuilds the bloom
// filter by scanning the filename table once.
func (f *FS) load() error {
	bm, code := loadBitmap(f.dev)
	if code != status.NoError {
		return errors.Wrap(code, "load bitmap")
	}
	f.bm = bm

	tags, code := loadTagNames(f.dev)
	if code != status.NoError {
		return errors.Wrap(code, "load tag names")
	}
	f.tags = tags

	f.rebuildBloom()
	f.debug("flashfs: loaded")
	return nil
}

// rebuildBloom scans the filename table and seeds a fresh bloom filter
// sized for FileCount entries; it is an advisory pre-check only, so a
// false positive just falls through to the authoritative linear scan in
// findByName.
func (f *FS) rebuildBloom() {
	f.names = bloom.NewWithEstimates(uint(FileCount), 0.01)
	for id := 0; id < FileCount; id++ {
		name, code := readFileName(f.dev, id)
		if code != status.NoError {
			continue
		}
		if s := nameString(name); s != "" {
			f.names.AddString(s)
		}
	}
}

// findByName returns the file id whose name matches s, or false if none
// does. The bloom filter is consulted first to skip the scan on a
// guaranteed miss.
func (f *FS) findByName(s string) (id int, ok bool) {
	if !f.names.TestString(s) {
		return 0, false
	}
	for i := 0; i < FileCount; i++ {
		name, code := readFileName(f.dev, i)
		if code != status.NoError {
			continue
		}
		if nameString(name) == s {
			return i, true
		}
	}
	return 0, false
}

func (f *FS) freeFileID() (id int, ok bool) {
	for i := 0; i < FileCount; i++ {
		name, code := readFileName(f.dev, i)
		if code != status.NoError {
			continue
		}
		if nameString(name) == "" {
			return i, true
		}
	}
	return 0, false
}

func (f *FS) freeDescriptorSlot() (idx int, ok bool) {
	for i := range f.desc {
		if f.desc[i].ID == UnsetID {
			return i, true
		}
	}
	return 0, false
}

func (f *FS) descriptorByID(id uint16) (idx int, ok bool) {
	for i := range f.desc {
		if f.desc[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (f *FS) allocateBlock() (lbi int, ok bool) {
	for i := lbiDataStart; i < lbiDataEnd; i++ {
		if f.bm.get(i) == BlockFree {
			return i, true
		}
	}
	return 0, false
}

// Create allocates a new file slot named name. If the name is already
// taken, behavior is governed by WithCreateOverwritesExisting: truncate
// the existing file, or return ErrExist.
func (f *FS) Create(name string) error {
	encoded, code := makeFileName(name)
	if code != status.NoError {
		return ErrNameSize
	}

	if id, exists := f.findByName(name); exists {
		if !f.overwrite {
			return ErrExist
		}
		return f.truncate(id)
	}

	id, ok := f.freeFileID()
	if !ok {
		return ErrNoSpace
	}
	lbi, ok := f.allocateBlock()
	if !ok {
		return ErrNoSpace
	}

	if code := writeChainBlock(f.dev, lbi, endOfChain, make([]byte, DataSize)); code != status.NoError {
		return errors.Wrap(code, "create: write initial chain block")
	}
	f.bm.set(lbi, BlockUsed)
	if code := persistBitmap(f.dev, f.bm); code != status.NoError {
		return errors.Wrap(code, "create: persist bitmap")
	}

	h := header{ID: uint16(id), LBIStart: uint16(lbi), Size: 0}
	if code := writeHeader(f.dev, id, h); code != status.NoError {
		return errors.Wrap(code, "create: write header")
	}
	if code := writeFileName(f.dev, id, encoded); code != status.NoError {
		return errors.Wrap(code, "create: write name")
	}
	f.names.AddString(name)
	f.trace("flashfs: created file", slog.String("name", name), slog.Int("id", id))
	return nil
}

// truncate resets an existing file's content to empty, freeing its data
// chain back to the bitmap.
func (f *FS) truncate(id int) error {
	h, code := readHeader(f.dev, id)
	if code != status.NoError {
		return errors.Wrap(code, "truncate: read header")
	}
	if err := f.freeChain(h.LBIStart); err != nil {
		return err
	}
	lbi, ok := f.allocateBlock()
	if !ok {
		return ErrNoSpace
	}
	if code := writeChainBlock(f.dev, lbi, endOfChain, make([]byte, DataSize)); code != status.NoError {
		return errors.Wrap(code, "truncate: write chain block")
	}
	f.bm.set(lbi, BlockUsed)
	if code := persistBitmap(f.dev, f.bm); code != status.NoError {
		return errors.Wrap(code, "truncate: persist bitmap")
	}
	h.LBIStart = uint16(lbi)
	h.Size = 0
	h.CRC32 = 0
	if code := writeHeader(f.dev, id, h); code != status.NoError {
		return errors.Wrap(code, "truncate: write header")
	}
	return nil
}

func (f *FS) freeChain(start uint16) error {
	lbi := int(start)
	for !chainEnded(uint16(lbi)) {
		next, _, code := readChainBlock(f.dev, lbi)
		if code != status.NoError {
			return errors.Wrap(code, "free chain")
		}
		f.bm.set(lbi, BlockFree)
		lbi = int(next)
	}
	if code := persistBitmap(f.dev, f.bm); code != status.NoError {
		return errors.Wrap(code, "free chain: persist bitmap")
	}
	return nil
}

// Open opens an existing file by name into a descriptor, returning a
// *File handle. At most DescriptorCount files may be open at once, and
// the same on-disk file may not be opened twice concurrently.
func (f *FS) Open(name string, mode Mode) (*File, error) {
	id, ok := f.findByName(name)
	if !ok {
		return nil, ErrNoFile
	}
	if _, busy := f.descriptorByID(uint16(id)); busy {
		return nil, ErrBusy
	}
	slot, ok := f.freeDescriptorSlot()
	if !ok {
		return nil, ErrBusy
	}

	h, code := readHeader(f.dev, id)
	if code != status.NoError {
		return nil, errors.Wrap(code, "open: read header")
	}
	encodedName, code := readFileName(f.dev, id)
	if code != status.NoError {
		return nil, errors.Wrap(code, "open: read name")
	}

	f.desc[slot] = fileDescriptor{
		ID:   uint16(id),
		Name: encodedName,
		Header: h,
		Status: FileStatus{
			Size:     h.Size,
			Position: 0,
			Mode:     mode,
			Tags:     h.Tags,
		},
	}
	f.trace("flashfs: opened file", slog.String("name", name), slog.Int("id", id))
	return &File{fs: f, slot: slot}, nil
}

// Remove deletes a file by name. The file must not currently be open.
func (f *FS) Remove(name string) error {
	id, ok := f.findByName(name)
	if !ok {
		return ErrNoFile
	}
	if _, busy := f.descriptorByID(uint16(id)); busy {
		return ErrBusy
	}
	h, code := readHeader(f.dev, id)
	if code != status.NoError {
		return errors.Wrap(code, "remove: read header")
	}
	if err := f.freeChain(h.LBIStart); err != nil {
		return err
	}
	var empty [NameSize]byte
	if code := writeFileName(f.dev, id, empty); code != status.NoError {
		return errors.Wrap(code, "remove: clear name")
	}
	if code := writeHeader(f.dev, id, header{ID: UnsetID}); code != status.NoError {
		return errors.Wrap(code, "remove: clear header")
	}
	f.rebuildBloom()
	return nil
}

// Rename changes a file's name in place. The destination name must not
// already exist.
func (f *FS) Rename(oldName, newName string) error {
	id, ok := f.findByName(oldName)
	if !ok {
		return ErrNoFile
	}
	if _, exists := f.findByName(newName); exists {
		return ErrExist
	}
	encoded, code := makeFileName(newName)
	if code != status.NoError {
		return ErrNameSize
	}
	if code := writeFileName(f.dev, id, encoded); code != status.NoError {
		return errors.Wrap(code, "rename: write name")
	}
	if slot, busy := f.descriptorByID(uint16(id)); busy {
		f.desc[slot].Name = encoded
	}
	f.names.AddString(newName)
	return nil
}

// TagAdd associates an already-named tag slot with the named file. The
// tag must already exist (see TagList); it is not created on demand.
func (f *FS) TagAdd(name, tag string) error {
	id, idx, err := f.resolveTag(name, tag)
	if err != nil {
		return err
	}
	h, code := readHeader(f.dev, id)
	if code != status.NoError {
		return errors.Wrap(code, "tag add: read header")
	}
	h.Tags[idx/8] |= 1 << uint(idx%8)
	if code := writeHeader(f.dev, id, h); code != status.NoError {
		return errors.Wrap(code, "tag add: write header")
	}
	return nil
}

// TagRemove disassociates tag from the named file. The tag must already
// exist; an absent tag is an error, not a no-op.
func (f *FS) TagRemove(name, tag string) error {
	id, idx, err := f.resolveTag(name, tag)
	if err != nil {
		return err
	}
	h, code := readHeader(f.dev, id)
	if code != status.NoError {
		return errors.Wrap(code, "tag remove: read header")
	}
	h.Tags[idx/8] &^= 1 << uint(idx%8)
	if code := writeHeader(f.dev, id, h); code != status.NoError {
		return errors.Wrap(code, "tag remove: write header")
	}
	return nil
}

// resolveTag looks up both the file id for name and the tag slot index
// for tag. Neither is created on demand: an absent file is ErrNoFile, an
// absent tag is ErrInvalidParam.
func (f *FS) resolveTag(name, tag string) (id int, idx int, err error) {
	id, ok := f.findByName(name)
	if !ok {
		return 0, 0, ErrNoFile
	}
	for i, t := range f.tags {
		if t.String() == tag {
			return id, i, nil
		}
	}
	return 0, 0, ErrInvalidParam
}

// TagRename renames an existing tag slot in place.
func (f *FS) TagRename(oldTag, newTag string) error {
	for i, t := range f.tags {
		if t.String() == oldTag {
			f.tags[i] = makeTagName(newTag)
			if code := persistTagNames(f.dev, f.tags); code != status.NoError {
				return errors.Wrap(code, "tag rename")
			}
			return nil
		}
	}
	return ErrNoFile
}

// TagList enumerates the occupied tag slots.
func (f *FS) TagList() []TagInfo {
	var out []TagInfo
	for i, t := range f.tags {
		if s := t.String(); s != "" {
			out = append(out, TagInfo{Index: i, Name: s})
		}
	}
	return out
}
