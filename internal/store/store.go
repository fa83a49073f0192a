// Package store persists generated variations: the files of each variation
// under its own directory on a billy filesystem, and their metadata in a
// SQLite index.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	_ "modernc.org/sqlite"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
)

var (
	// ErrNotFound is returned for unknown variations or files.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned for ids or file names that would escape the
	// variation's directory.
	ErrForbidden = errors.New("forbidden path")
)

const schema = `
CREATE TABLE IF NOT EXISTS variations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	html_file TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	tier TEXT NOT NULL DEFAULT '',
	files JSON NOT NULL,
	warnings JSON,
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_variations_created ON variations(created);
`

// Record is the stored metadata of a variation.
type Record struct {
	api.Variation
	// FileNames lists the stored files in template order.
	FileNames []string  `json:"files"`
	Created   time.Time `json:"created"`
}

// Store is safe for concurrent use.
type Store struct {
	fs  billy.Filesystem
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (creating if needed) the index at dbPath and stores files on fs.
func Open(fs billy.Filesystem, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{fs: fs, db: db, now: time.Now}, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// safeSegment rejects names that are empty, contain separators or are a
// dot segment. Dots inside a name ("app..min.js") are fine.
func safeSegment(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrForbidden, name)
	}
	return nil
}

// Save writes the variation's files and indexes it, replacing any earlier
// variation with the same id.
func (s *Store) Save(v *api.Variation) error {
	if err := safeSegment(v.BannerID); err != nil {
		return err
	}
	order := v.Order
	if len(order) == 0 {
		for name := range v.Files {
			order = append(order, name)
		}
	}
	for _, name := range order {
		if err := safeSegment(name); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.RemoveAll(s.fs, v.BannerID); err != nil {
		return fmt.Errorf("clear %s: %w", v.BannerID, err)
	}
	dir, err := s.dir(v.BannerID, true)
	if err != nil {
		return err
	}
	var stored []string
	for _, name := range order {
		content, ok := v.Files[name]
		if !ok {
			continue
		}
		if err := util.WriteFile(dir, name, content, 0o644); err != nil {
			return fmt.Errorf("write %s/%s: %w", v.BannerID, name, err)
		}
		stored = append(stored, name)
	}

	files, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	var warnings []byte
	if len(v.Warnings) > 0 {
		if warnings, err = json.Marshal(v.Warnings); err != nil {
			return err
		}
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO variations (id, name, html_file, width, height, tier, files, warnings, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.BannerID, v.Name, v.HTMLFile, v.Width, v.Height, string(v.Tier), string(files), nullable(warnings), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("index %s: %w", v.BannerID, err)
	}
	return nil
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func (s *Store) dir(id string, create bool) (billy.Filesystem, error) {
	if create {
		if err := s.fs.MkdirAll(id, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", id, err)
		}
	}
	dir, err := s.fs.Chroot(id)
	if err != nil {
		return nil, fmt.Errorf("chroot %s: %w", id, err)
	}
	return dir, nil
}

const selectColumns = `SELECT id, name, html_file, width, height, tier, files, warnings, created FROM variations`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r        Record
		tier     string
		files    string
		warnings sql.NullString
		created  int64
	)
	if err := row.Scan(&r.BannerID, &r.Name, &r.HTMLFile, &r.Width, &r.Height, &tier, &files, &warnings, &created); err != nil {
		return nil, err
	}
	r.Tier = api.Tier(tier)
	r.Created = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(files), &r.FileNames); err != nil {
		return nil, fmt.Errorf("decode files of %s: %w", r.BannerID, err)
	}
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of %s: %w", r.BannerID, err)
		}
	}
	r.Order = r.FileNames
	return &r, nil
}

// Get returns the metadata of variation id.
func (s *Store) Get(id string) (*Record, error) {
	if err := safeSegment(id); err != nil {
		return nil, err
	}
	r, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return r, nil
}

// List returns all variations, oldest first.
func (s *Store) List() ([]*Record, error) {
	rows, err := s.db.Query(selectColumns + ` ORDER BY created, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadFile returns one stored file of variation id.
func (s *Store) ReadFile(id, name string) ([]byte, error) {
	if err := safeSegment(id); err != nil {
		return nil, err
	}
	if err := safeSegment(name); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path.Join(id, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", id, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", id, name, err)
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// Load returns the variation with its files.
func (s *Store) Load(id string) (*api.Variation, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	v := r.Variation
	v.Files = make(map[string][]byte, len(r.FileNames))
	for _, name := range r.FileNames {
		content, err := s.ReadFile(id, name)
		if err != nil {
			return nil, err
		}
		v.Files[name] = content
	}
	return &v, nil
}

// Zip writes the files of variation id to w as a zip archive.
func (s *Store) Zip(id string, w io.Writer) error {
	v, err := s.Load(id)
	if err != nil {
		return err
	}
	return bundle.PackTo(w, v.Order, v.Files)
}

// Delete removes variation id and its files.
func (s *Store) Delete(id string) error {
	if err := safeSegment(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM variations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("variation %s: %w", id, ErrNotFound)
	}
	if err := util.RemoveAll(s.fs, id); err != nil {
		return fmt.Errorf("remove files of %s: %w", id, err)
	}
	return nil
}
