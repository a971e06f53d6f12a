package filestore

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/rangelabs/rangecloud/pkg/models"
)

// Index is the in-memory mapping from file id to FileInfo, mirrored to
// an index file with one serialized record per line. It is confined to
// the file-service worker goroutine.
type Index struct {
	path    string
	entries map[string]models.FileInfo
}

// NewIndex creates an index persisted at path.
func NewIndex(path string) *Index {
	return &Index{path: path, entries: make(map[string]models.FileInfo)}
}

// Load reads the index file. A missing file yields an empty index.
func (ix *Index) Load() error {
	f, err := os.Open(ix.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		info, err := models.ParseFileInfoLine(text)
		if err != nil {
			return fmt.Errorf("index line %d: %w", line, err)
		}
		ix.entries[info.ID] = info
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}
	return nil
}

// Write rewrites the index file, one record per line, ordered by id so
// consecutive writes of the same state are byte-identical.
func (ix *Index) Write() error {
	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	f, err := os.Create(ix.path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, id := range ids {
		line, err := ix.entries[id].MarshalLine()
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("failed to write index file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	return nil
}

// Contains reports whether the id is registered.
func (ix *Index) Contains(id string) bool {
	_, ok := ix.entries[id]
	return ok
}

// Find returns the record for id.
func (ix *Index) Find(id string) (models.FileInfo, bool) {
	info, ok := ix.entries[id]
	return info, ok
}

// Register inserts or replaces a record.
func (ix *Index) Register(info models.FileInfo) {
	ix.entries[info.ID] = info
}

// Unregister removes the record for id and returns it.
func (ix *Index) Unregister(id string) (models.FileInfo, bool) {
	info, ok := ix.entries[id]
	if ok {
		delete(ix.entries, id)
	}
	return info, ok
}

// All returns every record, ordered by id.
func (ix *Index) All() []models.FileInfo {
	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.FileInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, ix.entries[id])
	}
	return out
}

// Len returns the number of records.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// TotalSize sums the size of every record.
func (ix *Index) TotalSize() int64 {
	var total int64
	for _, info := range ix.entries {
		total += info.Size
	}
	return total
}
