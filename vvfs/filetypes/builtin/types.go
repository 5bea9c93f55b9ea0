// Package builtin supplies the stock file types and content detectors.
package builtin

import (
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
)

var (
	Shell      = filetypes.NewFileType("Shell Script", "Shell script", false)
	Python     = filetypes.NewFileType("Python", "Python source", false)
	Go         = filetypes.NewFileType("Go", "Go source", false)
	Markdown   = filetypes.NewFileType("Markdown", "Markdown document", false)
	JSON       = filetypes.NewFileType("JSON", "JSON document", false)
	YAML       = filetypes.NewFileType("YAML", "YAML document", false)
	XML        = filetypes.NewFileType("XML", "XML document", false)
	HTML       = filetypes.NewFileType("HTML", "HTML document", false)
	Dockerfile = filetypes.NewFileType("Dockerfile", "Docker build file", false)

	JPEG    = filetypes.NewFileType("JPEG", "JPEG image", true)
	Photo   = filetypes.NewFileType("Photo", "JPEG photo with camera metadata", true)
	PNG     = filetypes.NewFileType("PNG", "PNG image", true)
	GIF     = filetypes.NewFileType("GIF", "GIF image", true)
	PDF     = filetypes.NewFileType("PDF", "PDF document", true)
	Zip     = filetypes.NewFileType("ZIP", "ZIP archive", true)
	Gzip    = filetypes.NewFileType("GZIP", "gzip archive", true)
	Archive = filetypes.NewFileType("Archive", "Compressed tar archive", true)
)

func descriptor(t *filetypes.FileType, patterns []string, hashBangs ...string) filetypes.Descriptor {
	matchers := make([]matcher.FileNameMatcher, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, matcher.MustParse(p))
	}
	return filetypes.Descriptor{
		Name:      t.Name(),
		Matchers:  matchers,
		HashBangs: hashBangs,
		Factory:   func() (*filetypes.FileType, error) { return t, nil },
	}
}

// Descriptors returns lazily constructed descriptors for the built-in types.
// Photo has no name pattern; it is only produced by content detection.
func Descriptors() []filetypes.Descriptor {
	return []filetypes.Descriptor{
		descriptor(Shell, []string{"*.sh", "*.bash", "*.zsh"}, "sh", "bash", "zsh", "dash"),
		descriptor(Python, []string{"*.py", "*.pyw"}, "python", "python2", "python3"),
		descriptor(Go, []string{"*.go"}),
		descriptor(Markdown, []string{"*.md", "*.markdown", "README"}),
		descriptor(JSON, []string{"*.json", "*.jsonl", ".babelrc"}),
		descriptor(YAML, []string{"*.yaml", "*.yml"}),
		descriptor(XML, []string{"*.xml", "*.xsd", "*.svg"}),
		descriptor(HTML, []string{"*.html", "*.htm"}),
		descriptor(Dockerfile, []string{"Dockerfile", "*.dockerfile"}),
		descriptor(JPEG, []string{"*.jpg", "*.jpeg"}),
		descriptor(Photo, nil),
		descriptor(PNG, []string{"*.png"}),
		descriptor(GIF, []string{"*.gif"}),
		descriptor(PDF, []string{"*.pdf"}),
		descriptor(Zip, []string{"*.zip", "*.jar"}),
		descriptor(Gzip, []string{"*.gz"}),
		descriptor(Archive, []string{"*.tar.gz", "*.tgz"}),
	}
}

// Detectors returns the built-in content detectors in the order they run.
func Detectors() []filetypes.ContentDetector {
	return []filetypes.ContentDetector{
		NewMagicDetector(),
		XMLDetector{},
	}
}

// Register installs the built-in types and detectors into m.
func Register(m *filetypes.Manager) error {
	for _, d := range Descriptors() {
		if err := m.RegisterDescriptor(d); err != nil {
			return err
		}
	}
	for _, d := range Detectors() {
		m.RegisterDetector(d)
	}
	return nil
}
