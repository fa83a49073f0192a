// Package bundle unpacks banner template archives into a flat, in-memory
// file set and packs variation file sets back into zip archives.
package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNoEntryHTML means the archive holds no .html file to render.
	ErrNoEntryHTML = errors.New("template has no .html entry file")
	// ErrEntryTooLarge guards against archives that expand to huge files.
	ErrEntryTooLarge = errors.New("template entry exceeds size limit")
)

// MaxEntrySize bounds the uncompressed size of a single template file.
const MaxEntrySize = 32 << 20

// DynamicJSName is used when a rewrite is added to a template without one.
const DynamicJSName = "Dynamic.js"

// Bundle is an unpacked template. Files is keyed by flattened file name
// (directories stripped). A Bundle is treated as read-only once unpacked;
// use Clone to derive a modified copy.
type Bundle struct {
	Files map[string][]byte
	// Order lists the keys of Files in archive order.
	Order []string
	// EntryHTML is the first .html file in archive order.
	EntryHTML string
	// DynamicJS is the first file whose name ends in "dynamic.js", or empty.
	DynamicJS string
}

// Unpack reads a template archive. Directory entries, macOS metadata
// (__MACOSX/ and ._ resource forks) are skipped. When two entries flatten to
// the same name, the later content wins and the earlier position is kept.
func Unpack(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open template zip: %w", err)
	}

	b := &Bundle{Files: make(map[string][]byte)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skipEntry(f.Name) {
			continue
		}
		name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		if name == "" || name == "." || name == "/" {
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if _, seen := b.Files[name]; !seen {
			b.Order = append(b.Order, name)
		}
		b.Files[name] = content
	}

	b.identify()
	if b.EntryHTML == "" {
		return nil, ErrNoEntryHTML
	}
	return b, nil
}

// FromFiles builds a bundle from an already flattened file set.
func FromFiles(order []string, files map[string][]byte) (*Bundle, error) {
	b := &Bundle{Files: make(map[string][]byte, len(files))}
	for _, name := range order {
		content, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("file %q listed but missing", name)
		}
		if _, seen := b.Files[name]; !seen {
			b.Order = append(b.Order, name)
		}
		b.Files[name] = content
	}
	b.identify()
	if b.EntryHTML == "" {
		return nil, ErrNoEntryHTML
	}
	return b, nil
}

func skipEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), "._")
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	content, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(content) > MaxEntrySize {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrEntryTooLarge)
	}
	return content, nil
}

func (b *Bundle) identify() {
	b.EntryHTML, b.DynamicJS = "", ""
	for _, name := range b.Order {
		lower := strings.ToLower(name)
		if b.EntryHTML == "" && strings.HasSuffix(lower, ".html") {
			b.EntryHTML = name
		}
		if b.DynamicJS == "" && strings.HasSuffix(lower, "dynamic.js") {
			b.DynamicJS = name
		}
	}
}

// HasDynamicJS reports whether the template ships a Dynamic.js.
func (b *Bundle) HasDynamicJS() bool { return b.DynamicJS != "" }

// Source returns the Dynamic.js text, or "" when there is none.
func (b *Bundle) Source() string {
	if b.DynamicJS == "" {
		return ""
	}
	return string(b.Files[b.DynamicJS])
}

// EntryHTMLText returns the entry HTML file as text.
func (b *Bundle) EntryHTMLText() string {
	return string(b.Files[b.EntryHTML])
}

// Clone returns a copy whose file map can be modified independently. File
// contents are shared; callers replace entries instead of writing into them.
func (b *Bundle) Clone() *Bundle {
	c := &Bundle{
		Files:     make(map[string][]byte, len(b.Files)),
		Order:     append([]string(nil), b.Order...),
		EntryHTML: b.EntryHTML,
		DynamicJS: b.DynamicJS,
	}
	for k, v := range b.Files {
		c.Files[k] = v
	}
	return c
}

// WithDynamicJS returns a clone with Dynamic.js replaced by src. A template
// without Dynamic.js gains one named DynamicJSName.
func (b *Bundle) WithDynamicJS(src string) *Bundle {
	c := b.Clone()
	if c.DynamicJS == "" {
		c.DynamicJS = DynamicJSName
		if _, ok := c.Files[DynamicJSName]; !ok {
			c.Order = append(c.Order, DynamicJSName)
		}
	}
	c.Files[c.DynamicJS] = []byte(src)
	return c
}

// Pack writes files into a zip archive in the given order. Names missing
// from files are skipped.
func Pack(order []string, files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := PackTo(&buf, order, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackTo is Pack writing to w.
func PackTo(w io.Writer, order []string, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	for _, name := range order {
		content, ok := files[name]
		if !ok {
			continue
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := fw.Write(content); err != nil {
			return fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
