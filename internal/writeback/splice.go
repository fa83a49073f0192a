package writeback

import (
	"fmt"
	"os"
	"path/filepath"
)

// Splice returns a copy of src with the byte range [start:end) replaced by
// content. src is never modified.
func Splice(src []byte, start, end int, content []byte) ([]byte, error) {
	if start < 0 || end > len(src) || start > end {
		return nil, fmt.Errorf("invalid byte range [%d:%d] for source of length %d", start, end, len(src))
	}

	// result = prefix + content + suffix
	result := make([]byte, 0, start+len(content)+len(src)-end)
	result = append(result, src[:start]...)
	result = append(result, content...)
	result = append(result, src[end:]...)
	return result, nil
}

// WriteFileAtomic replaces the file at path with content. The content is
// written to a temp file in the same directory first, then renamed over the
// original, keeping the original permissions.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rendergrid-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode()) // best-effort permission sync
	} else {
		_ = os.Chmod(tmpName, 0o644)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
