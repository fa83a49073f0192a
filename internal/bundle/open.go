package bundle

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Open loads a template from a zip archive or an unpacked directory.
func Open(p string) (*Bundle, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ReadDir(osfs.New(p), "/")
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return Unpack(data)
}

// ReadDir builds a bundle from the files under root, flattened the same way
// Unpack flattens archive entries. Files are taken in lexical path order and
// hidden files are skipped.
func ReadDir(fs billy.Filesystem, root string) (*Bundle, error) {
	var paths []string
	err := util.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if p != root && (strings.HasPrefix(name, ".") || name == "__MACOSX") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(name, ".") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	sort.Strings(paths)

	var order []string
	files := make(map[string][]byte, len(paths))
	for _, p := range paths {
		content, err := util.ReadFile(fs, p)
		if err != nil {
			return nil, err
		}
		name := path.Base(filepath.ToSlash(p))
		if _, seen := files[name]; !seen {
			order = append(order, name)
		}
		files[name] = content
	}
	return FromFiles(order, files)
}
