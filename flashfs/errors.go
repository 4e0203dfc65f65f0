package flashfs

import "github.com/YaPish/diploma-file-system/status"

// Error sentinels, each a *status.Error so callers can compare with
// errors.Is against either the coarse status.Code or this exact value.
var (
	ErrNoFile       = status.New(status.OperationFailed, status.FileErrorNoFile)
	ErrBusy         = status.New(status.OperationFailed, status.FileErrorBusy)
	ErrExist        = status.New(status.OperationFailed, status.FileErrorExist)
	ErrPermission   = status.New(status.AccessDenied, status.FileErrorPermission)
	ErrNoSpace      = status.New(status.OperationFailed, status.FileErrorNoSpace)
	ErrOverflow     = status.New(status.InvalidParam, status.FileErrorOverflow)
	ErrFileSize     = status.New(status.InvalidParam, status.FileErrorFileSize)
	ErrDescriptor   = status.New(status.InvalidParam, status.FileErrorDescriptor)
	ErrInvalidParam = status.New(status.InvalidParam, status.FileErrorInvalidParam)
	ErrIO           = status.New(status.OperationFailed, status.FileErrorIO)
	ErrNameSize     = status.New(status.InvalidParam, status.FileErrorNameSize)
)
