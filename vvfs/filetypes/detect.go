package filetypes

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DefaultSniffLimit is the largest prefix read for content detection.
const DefaultSniffLimit = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readPrefix reads up to limit bytes from the start of f.
func readPrefix(f File, limit int) ([]byte, error) {
	if !f.HasContentSource() {
		return nil, ErrNoContentSource
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path(), err)
	}
	defer rc.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path(), err)
	}
	return buf[:n], nil
}

// readContent reads the sniff prefix of f. A failed or empty first read is
// retried once under the read barrier, so writers in progress can finish.
func (m *Manager) readContent(f File) ([]byte, error) {
	b, err := readPrefix(f, m.opts.SniffLimit)
	if err == nil && len(b) > 0 {
		return b, nil
	}
	if errors.Is(err, ErrNoContentSource) {
		return nil, err
	}

	slog.Debug("Retrying content read under read barrier", "path", f.Path(), "read", len(b), "error", err)
	err = m.opts.ReadBarrier(func() error {
		var rerr error
		b, rerr = readPrefix(f, m.opts.SniffLimit)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// decodeText decides whether b is text and returns its decoded form.
func decodeText(b []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(b, utf8BOM):
		b = b[len(utf8BOM):]
	case len(b) >= 2 && (b[0] == 0xFF && b[1] == 0xFE || b[0] == 0xFE && b[1] == 0xFF):
		return decodeUTF16(b)
	}

	if hasBinaryControl(b) {
		return "", false
	}
	if trimmed := trimIncompleteRune(b); utf8.Valid(trimmed) {
		return string(trimmed), true
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(text), true
}

func decodeUTF16(b []byte) (string, bool) {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	text, err := dec.Bytes(b)
	if err != nil || hasBinaryControl(text) {
		return "", false
	}
	return string(text), true
}

// hasBinaryControl reports control bytes that never appear in text files.
// Tab, newlines, form feed and escape are allowed.
func hasBinaryControl(b []byte) bool {
	for _, c := range b {
		if c <= 0x08 || (c >= 0x0E && c <= 0x1A) || (c >= 0x1C && c <= 0x1F) {
			return true
		}
	}
	return false
}

// trimIncompleteRune drops a multi-byte sequence cut off by the read limit.
func trimIncompleteRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			break
		}
	}
	return b
}

// detect classifies a content prefix. Empty content is Unknown.
func (m *Manager) detect(f File, b []byte, detectors []ContentDetector) *FileType {
	if len(b) == 0 {
		return Unknown
	}
	text, isText := decodeText(b)
	content := Content{Bytes: b, Text: text, IsText: isText}

	if isText {
		if interpreter, ok := matcher.HashBangInterpreter(text); ok {
			if t := m.FileTypeByHashBang(interpreter); t != Unknown {
				return t
			}
		}
	}

	for _, d := range detectors {
		if t := runDetector(d, f, content); t != nil {
			slog.Debug("Content detector matched", "path", f.Path(), "detector", fmt.Sprintf("%T", d), "type", t.Name())
			return t
		}
	}
	if isText {
		return PlainText
	}
	return Unknown
}

func runDetector(d ContentDetector, f File, c Content) *FileType {
	var (
		pc  panics.Catcher
		t   *FileType
		err error
	)
	pc.Try(func() { t, err = d.Detect(f, c) })
	if r := pc.Recovered(); r != nil {
		slog.Error("Content detector panicked", "detector", fmt.Sprintf("%T", d), "path", f.Path(), "error", r.AsError())
		return nil
	}
	if err != nil {
		slog.Error("Content detector failed", "detector", fmt.Sprintf("%T", d), "path", f.Path(), "error", err)
		return nil
	}
	return t
}

// isDetectable reports whether content detection may run for f.
func isDetectable(f File) bool {
	if f.IsDirectory() || !f.IsValid() || f.IsSpecial() || f.Length() == 0 {
		return false
	}
	return f.HasContentSource()
}
