package flashfs

import (
	"io"
	"testing"

	"github.com/YaPish/diploma-file-system/flash"
	"github.com/YaPish/diploma-file-system/ftl"
)

type memBacking struct {
	buf []byte
}

func newMemBacking() *memBacking {
	return &memBacking{buf: make([]byte, flash.Capacity)}
}

func (m *memBacking) ReadAt(offset int, dst []byte) error {
	copy(dst, m.buf[offset:offset+len(dst)])
	return nil
}

func (m *memBacking) WriteAt(offset int, src []byte) error {
	copy(m.buf[offset:offset+len(src)], src)
	return nil
}

func newFS(t *testing.T, opts ...Option) *FS {
	t.Helper()
	dev, err := flash.Open(newMemBacking())
	if err != nil {
		t.Fatal(err)
	}
	tl, err := ftl.Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := New(tl, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestFirstBootFormatsCleanFilesystem(t *testing.T) {
	fs := newFS(t)
	if len(fs.TagList()) != 0 {
		t.Fatalf("fresh fs has tags, want none")
	}
	if _, ok := fs.findByName("anything"); ok {
		t.Fatalf("fresh fs resolves a name that was never created")
	}
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	fs := newFS(t)
	if err := fs.Create("hello.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	wf, err := fs.Open("hello.txt", ModeReadWrite)
	if err != nil {
		t.Fatalf("Open for write: %v", err)
	}
	want := []byte("hello, flash filesystem")
	if n, err := wf.Write(want); err != nil || n != len(want) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := fs.Open("hello.txt", ModeReadOnly)
	if err != nil {
		t.Fatalf("Open for read: %v", err)
	}
	got := make([]byte, len(want))
	if n, err := io.ReadFull(rf, got); err != nil || n != len(want) {
		t.Fatalf("ReadFull = %d, %v", n, err)
	}
	if string(got) != string(want) {
		t.Fatalf("content = %q, want %q", got, want)
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteSpanningMultipleBlocks(t *testing.T) {
	fs := newFS(t)
	if err := fs.Create("big.bin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	wf, err := fs.Open("big.bin", ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := make([]byte, 5*DataSize+37)
	for i := range want {
		want[i] = byte(i)
	}
	if n, err := wf.Write(want); err != nil || n != len(want) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := fs.Open("big.bin", ModeReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := make([]byte, len(want))
	if n, err := io.ReadFull(rf, got); err != nil || n != len(want) {
		t.Fatalf("ReadFull = %d, %v", n, err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x want %#x", i, got[i], want[i])
		}
	}
	rf.Close()
}

func TestCreateDuplicateNameDefaultsToExistError(t *testing.T) {
	fs := newFS(t)
	if err := fs.Create("dup.txt"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := fs.Create("dup.txt"); err != ErrExist {
		t.Fatalf("second Create = %v, want ErrExist", err)
	}
}

func TestCreateOverwritesExistingWhenConfigured(t *testing.T) {
	fs := newFS(t, WithCreateOverwritesExisting(true))
	if err := fs.Create("dup.txt"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	wf, err := fs.Open("dup.txt", ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := wf.Write([]byte("stale content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := fs.Create("dup.txt"); err != nil {
		t.Fatalf("overwrite Create: %v", err)
	}
	rf, err := fs.Open("dup.txt", ModeReadOnly)
	if err != nil {
		t.Fatalf("Open after overwrite: %v", err)
	}
	if st := rf.Status(); st.Size != 0 {
		t.Fatalf("overwritten file size = %d, want 0", st.Size)
	}
	rf.Close()
}

func TestOpenSameFileTwiceIsBusy(t *testing.T) {
	fs := newFS(t)
	if err := fs.Create("busy.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	a, err := fs.Open("busy.txt", ModeReadOnly)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := fs.Open("busy.txt", ModeReadOnly); err != ErrBusy {
		t.Fatalf("second Open = %v, want ErrBusy", err)
	}
	a.Close()
	if _, err := fs.Open("busy.txt", ModeReadOnly); err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
}

func TestRenameRejectsExistingDestination(t *testing.T) {
	fs := newFS(t)
	fs.Create("a.txt")
	fs.Create("b.txt")
	if err := fs.Rename("a.txt", "b.txt"); err != ErrExist {
		t.Fatalf("Rename to existing name = %v, want ErrExist", err)
	}
	if err := fs.Rename("a.txt", "c.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, ok := fs.findByName("c.txt"); !ok {
		t.Fatalf("renamed file not found under new name")
	}
}

func TestRemoveFreesNameAndBlocks(t *testing.T) {
	fs := newFS(t)
	fs.Create("gone.txt")
	wf, _ := fs.Open("gone.txt", ModeReadWrite)
	wf.Write(make([]byte, 3*DataSize))
	wf.Close()

	if err := fs.Remove("gone.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := fs.findByName("gone.txt"); ok {
		t.Fatalf("removed file still resolves by name")
	}
	for lbi := lbiDataStart; lbi < lbiDataEnd; lbi++ {
		if flag := fs.bm.get(lbi); flag != BlockFree {
			t.Fatalf("data block %d flag = %d after Remove, want Free", lbi, flag)
		}
	}
	if err := fs.Create("gone.txt"); err != nil {
		t.Fatalf("recreate after remove: %v", err)
	}
}

func TestTagAddRemoveRename(t *testing.T) {
	fs := newFS(t)
	fs.Create("tagged.txt")

	// Tag slots are never created by TagAdd: a slot is populated by
	// renaming an unused (empty-name) slot, matching the original
	// FS_TAG_RENAME, which matches an empty OLD_NAME against any unused
	// slot just like any other name.
	if err := fs.TagRename("", "important"); err != nil {
		t.Fatalf("TagRename to populate slot: %v", err)
	}

	if err := fs.TagAdd("tagged.txt", "important"); err != nil {
		t.Fatalf("TagAdd: %v", err)
	}
	found := false
	for _, ti := range fs.TagList() {
		if ti.Name == "important" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tag list missing added tag")
	}

	if err := fs.TagRename("important", "urgent"); err != nil {
		t.Fatalf("TagRename: %v", err)
	}
	found = false
	for _, ti := range fs.TagList() {
		if ti.Name == "urgent" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tag list missing renamed tag")
	}

	if err := fs.TagRemove("tagged.txt", "urgent"); err != nil {
		t.Fatalf("TagRemove: %v", err)
	}
}

func TestTagAddRemoveRejectUnknownTag(t *testing.T) {
	fs := newFS(t)
	fs.Create("tagged.txt")

	if err := fs.TagAdd("tagged.txt", "nosuchtag"); err != ErrInvalidParam {
		t.Fatalf("TagAdd with unknown tag = %v, want ErrInvalidParam", err)
	}
	if err := fs.TagRemove("tagged.txt", "nosuchtag"); err != ErrInvalidParam {
		t.Fatalf("TagRemove with unknown tag = %v, want ErrInvalidParam", err)
	}
}

func TestWriteBeyondMaxFileSizeFailsFileSize(t *testing.T) {
	fs := newFS(t)
	fs.Create("big.txt")
	fl, err := fs.Open("big.txt", ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fl.Close()

	// Drive the descriptor to the cap directly rather than writing
	// maxFileSize bytes of real chain data.
	d := fl.descriptor()
	d.Status.Position = int32(maxFileSize)
	d.Status.Size = maxFileSize

	if _, err := fl.Write([]byte("x")); err != ErrFileSize {
		t.Fatalf("Write past maxFileSize = %v, want ErrFileSize", err)
	}
}

func TestOpenFailsBusyWhenDescriptorTableFull(t *testing.T) {
	fs := newFS(t)
	var opened []*File
	for i := 0; i < DescriptorCount; i++ {
		name := string(rune('a' + i%26))
		if i >= 26 {
			name += string(rune('a' + i/26))
		}
		if err := fs.Create(name); err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
		fl, err := fs.Open(name, ModeReadOnly)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		opened = append(opened, fl)
	}
	defer func() {
		for _, fl := range opened {
			fl.Close()
		}
	}()

	if err := fs.Create("overflow.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Open("overflow.txt", ModeReadOnly); err != ErrBusy {
		t.Fatalf("Open with descriptor table full = %v, want ErrBusy", err)
	}
}

func TestSeekRejectsPositionOutsideFileBounds(t *testing.T) {
	fs := newFS(t)
	fs.Create("seek.txt")
	wf, _ := fs.Open("seek.txt", ModeReadWrite)
	wf.Write([]byte("0123456789"))
	wf.Close()

	rf, err := fs.Open("seek.txt", ModeReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := rf.Seek(100, io.SeekStart); err != ErrOverflow {
		t.Fatalf("Seek past end = %v, want ErrOverflow", err)
	}
	if _, err := rf.Seek(-1, io.SeekStart); err != ErrOverflow {
		t.Fatalf("Seek before start = %v, want ErrOverflow", err)
	}
	pos, err := rf.Seek(5, io.SeekStart)
	if err != nil || pos != 5 {
		t.Fatalf("Seek(5) = %d, %v", pos, err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(rf, got); err != nil {
		t.Fatalf("ReadFull after seek: %v", err)
	}
	if string(got) != "56789" {
		t.Fatalf("content after seek = %q, want %q", got, "56789")
	}
	rf.Close()
}

func TestReadOnlyFileRejectsWrite(t *testing.T) {
	fs := newFS(t)
	fs.Create("ro.txt")
	rf, err := fs.Open("ro.txt", ModeReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := rf.Write([]byte("nope")); err != ErrPermission {
		t.Fatalf("Write on read-only file = %v, want ErrPermission", err)
	}
	rf.Close()
}

func TestGarbageCollectDuringFormatDoesNotBreakFreshFS(t *testing.T) {
	fs := newFS(t)
	if err := fs.Create("after-format.txt"); err != nil {
		t.Fatalf("Create after format: %v", err)
	}
	wf, err := fs.Open("after-format.txt", ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := wf.Write([]byte("still works")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wf.Close()
}
