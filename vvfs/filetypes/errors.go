package filetypes

import (
	"errors"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/ignore"
)

var (
	ErrNoContentSource    = errors.New("file has no content source")
	ErrUnknownFileType    = errors.New("unknown file type")
	ErrShutdown           = errors.New("file type manager is shut down")
	ErrUnsortedIgnoreList = ignore.ErrUnsortedMasks
)
