package flashfs

// FileStatus is the live state of an open file, matching the original
// FILE_STATUS_TYPE: size, position, open mode, and tag bitmap.
type FileStatus struct {
	Size     uint32
	Position int32
	Mode     Mode
	Tags     [7]byte
}

// fileDescriptor is a RAM-only open-file slot. ID == UnsetID marks a free
// slot. The same file id may occupy at most one descriptor at a time.
type fileDescriptor struct {
	ID     uint16
	Status FileStatus
	Name   [NameSize]byte
	Header header
}

func freeDescriptor() fileDescriptor {
	return fileDescriptor{ID: UnsetID}
}
