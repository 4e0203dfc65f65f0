package emulator

import (
	"path/filepath"
	"testing"
)

func TestOpenTruncatesAndZeroes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	e, err := Open(path, 1024)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Len() != 1024 {
		t.Fatalf("Len() = %d, want 1024", e.Len())
	}

	buf := make([]byte, 16)
	if err := e.ReadAt(0, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 on fresh file", i, b)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	e, err := Open(path, 256)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := e.WriteAt(100, want); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(want))
	if err := e.ReadAt(100, got); err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReadAtOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	e, err := Open(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.ReadAt(60, make([]byte, 16)); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	e, err := Open(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.WriteAt(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e2, err := Open(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Close()

	got := make([]byte, 4)
	if err := e2.ReadAt(0, got); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
