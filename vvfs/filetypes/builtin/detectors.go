package builtin

import (
	"bytes"
	"strings"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
)

type signature struct {
	magic []byte
	t     *filetypes.FileType
}

// MagicDetector recognises binary formats by their leading bytes. JPEG files
// carrying camera EXIF metadata are reported as Photo.
type MagicDetector struct {
	signatures []signature
}

func NewMagicDetector() *MagicDetector {
	return &MagicDetector{signatures: []signature{
		{[]byte("\x89PNG\r\n\x1a\n"), PNG},
		{[]byte("GIF87a"), GIF},
		{[]byte("GIF89a"), GIF},
		{[]byte{0xFF, 0xD8, 0xFF}, JPEG},
		{[]byte("%PDF-"), PDF},
		{[]byte("PK\x03\x04"), Zip},
		{[]byte{0x1F, 0x8B}, Gzip},
	}}
}

func (d *MagicDetector) Detect(_ filetypes.File, c filetypes.Content) (*filetypes.FileType, error) {
	for _, s := range d.signatures {
		if !bytes.HasPrefix(c.Bytes, s.magic) {
			continue
		}
		if s.t == JPEG && IsPhoto(c.Bytes) {
			return Photo, nil
		}
		return s.t, nil
	}
	return nil, nil
}

func (d *MagicDetector) DeclaredTypes() []*filetypes.FileType {
	out := []*filetypes.FileType{Photo}
	seen := map[*filetypes.FileType]bool{Photo: true}
	for _, s := range d.signatures {
		if !seen[s.t] {
			seen[s.t] = true
			out = append(out, s.t)
		}
	}
	return out
}

// XMLDetector recognises text starting with an XML declaration.
type XMLDetector struct{}

func (XMLDetector) Detect(_ filetypes.File, c filetypes.Content) (*filetypes.FileType, error) {
	if c.IsText && strings.HasPrefix(strings.TrimLeft(c.Text, " \t\r\n"), "<?xml") {
		return XML, nil
	}
	return nil, nil
}

func (XMLDetector) DeclaredTypes() []*filetypes.FileType { return []*filetypes.FileType{XML} }
