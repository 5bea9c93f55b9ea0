package builtin

import (
	"bytes"

	exiflib "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// cameraFields mark a JPEG as a photo rather than a plain image.
var cameraFields = []string{"Make", "Model", "DateTimeOriginal"}

// ExtractEXIF returns a flat map of EXIF tag names to their string values.
// On any error (non-JPEG, missing EXIF, truncated prefix) it returns nil.
func ExtractEXIF(prefix []byte) map[string]string {
	x, err := exiflib.Decode(bytes.NewReader(prefix))
	if err != nil {
		return nil
	}
	out := make(map[string]string)
	_ = x.Walk(exifWalker{m: out})
	if len(out) == 0 {
		return nil
	}
	return out
}

type exifWalker struct{ m map[string]string }

func (w exifWalker) Walk(name exiflib.FieldName, tag *tiff.Tag) error {
	w.m[string(name)] = tag.String()
	return nil
}

// IsPhoto reports whether a JPEG prefix carries camera metadata.
func IsPhoto(prefix []byte) bool {
	fields := ExtractEXIF(prefix)
	for _, name := range cameraFields {
		if _, ok := fields[name]; ok {
			return true
		}
	}
	return false
}
