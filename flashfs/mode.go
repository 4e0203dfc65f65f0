package flashfs

// Mode is the access mode a file is opened with.
type Mode int

const (
	ModeReadOnly Mode = iota + 1
	ModeReadWrite
)
