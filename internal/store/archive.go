package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4"
)

// archiveVersion is bumped when the archive layout changes.
const archiveVersion = 1

// Archive is the decoded content of an export.
type Archive struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Things     []*Thing  `json:"things"`
}

// Export writes the things of namespace (all namespaces when empty) to w as
// lz4-compressed JSON. It returns the number of things written.
func (s *Store) Export(w io.Writer, namespace string) (int, error) {
	var (
		things []*Thing
		err    error
	)
	if namespace == "" {
		things, err = s.AllThings()
	} else {
		things, err = s.ThingsByNamespace(namespace, "")
	}
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	zw := lz4.NewWriter(w)
	archive := Archive{Version: archiveVersion, ExportedAt: time.Now().UTC(), Things: things}
	if err := json.NewEncoder(zw).Encode(archive); err != nil {
		zw.Close()
		return 0, fmt.Errorf("export: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("export: compress: %w", err)
	}
	return len(things), nil
}

// ReadArchive decodes an archive produced by Export.
func ReadArchive(r io.Reader) (*Archive, error) {
	var archive Archive
	if err := json.NewDecoder(lz4.NewReader(r)).Decode(&archive); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if archive.Version != archiveVersion {
		return nil, fmt.Errorf("read archive: unsupported version %d", archive.Version)
	}
	return &archive, nil
}

// Import loads an archive in one transaction. Things whose ID already exists
// are overwritten. It returns the number of things imported.
func (s *Store) Import(r io.Reader) (int, error) {
	archive, err := ReadArchive(r)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("import: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range archive.Things {
		if err := insertThing(tx, t); err != nil {
			return 0, fmt.Errorf("import: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import: commit: %w", err)
	}
	return len(archive.Things), nil
}
