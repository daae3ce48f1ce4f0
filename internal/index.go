package internal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// indexHeader is the fixed first row of a persisted index file.
var indexHeader = []string{"directory", "filename", "type", "md5"}

// Entry is one archived file: where it lives relative to the output root
// and what it is.
type Entry struct {
	Directory string
	Name      string
	Kind      Kind
}

// Index is the duplicate index: composite key → archived location, backed
// by a CSV file.
type Index struct {
	path    string
	root    string
	entries map[string]Entry
	log     *zap.Logger
}

// NewIndex creates an empty index persisted at path, with directories
// stored relative to root.
func NewIndex(path, root string, log *zap.Logger) *Index {
	return &Index{
		path:    path,
		root:    root,
		entries: make(map[string]Entry),
		log:     log,
	}
}

func (x *Index) Path() string { return x.path }

func (x *Index) Len() int { return len(x.entries) }

// Load reads the persisted index. A missing or empty file means an empty
// index; any other failure fails the load, and a malformed row is never
// skipped. With merge set, rows are laid over the current entries (the
// file wins on key overlap) instead of replacing them.
func (x *Index) Load(merge bool) error {
	if !merge {
		x.entries = make(map[string]Entry)
	}

	f, err := os.Open(x.path)
	if err != nil {
		if os.IsNotExist(err) {
			x.log.Debug("no index file, starting empty", zap.String("path", x.path))
			return nil
		}
		return fmt.Errorf("failed to open index %s: %w", x.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	// Header row, discarded without validation. A file with no rows at
	// all loads as an empty index.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			x.log.Debug("index file empty", zap.String("path", x.path))
			return nil
		}
		return fmt.Errorf("%w: %s: header: %v", ErrCorruptIndex, x.path, err)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, x.path, err)
		}
		x.entries[rec[3]] = Entry{Directory: rec[0], Name: rec[1], Kind: Kind(rec[2])}
	}
	return nil
}

// IsDuplicate reports whether the file's composite key is already
// archived. On a hit the indexed bytes are compared as an audit: a
// mismatch is a hash collision, logged for a human to follow up, with a
// missing indexed file counting as a mismatch. The key match is
// authoritative for routing, so the result is duplicate either way.
func (x *Index) IsDuplicate(m Media) (bool, error) {
	key, err := m.Identity()
	if err != nil {
		return false, err
	}
	entry, ok := x.entries[key]
	if !ok {
		return false, nil
	}

	indexed := filepath.Join(x.root, entry.Directory, entry.Name)
	if !m.EqualTo(indexed) {
		_, statErr := os.Stat(indexed)
		x.log.Error("hash collision: same key, different content",
			zap.String("file", m.Path()),
			zap.String("indexed", indexed),
			zap.String("key", key),
			zap.Bool("critical", true),
			zap.Bool("missing", os.IsNotExist(statErr)),
		)
	}
	return true, nil
}

// Add registers a file living at dir/name. dir comes in absolute and is
// stored relative to the output root. Returns false when the identity
// could not be computed.
func (x *Index) Add(dir, name string, m Media) bool {
	key, err := m.Identity()
	if err != nil {
		x.log.Error("failed to index file", zap.String("file", m.Path()), zap.Error(err))
		return false
	}

	rel := dir
	if dir == x.root {
		rel = ""
	} else {
		rel = strings.TrimPrefix(dir, x.root+string(os.PathSeparator))
	}
	x.entries[key] = Entry{Directory: rel, Name: name, Kind: m.Kind()}
	return true
}

// Write persists the index: the previous file rotates to one .bak
// generation best-effort, then header plus one row per entry, sorted by
// key so the output is reproducible. Failures propagate and must stop the
// batch; further duplicate checks would run against a stale table.
func (x *Index) Write() error {
	bak := x.path + ".bak"
	os.Remove(bak)
	os.Rename(x.path, bak)

	f, err := os.Create(x.path)
	if err != nil {
		return fmt.Errorf("failed creating index %s: %w", x.path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(indexHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed writing index %s: %w", x.path, err)
	}

	keys := make([]string, 0, len(x.entries))
	for k := range x.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := x.entries[k]
		if err := w.Write([]string{e.Directory, e.Name, string(e.Kind), k}); err != nil {
			f.Close()
			return fmt.Errorf("failed writing index %s: %w", x.path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed writing index %s: %w", x.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed writing index %s: %w", x.path, err)
	}
	return nil
}

// CountByKind tallies entries per media kind.
func (x *Index) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range x.entries {
		counts[e.Kind]++
	}
	return counts
}
