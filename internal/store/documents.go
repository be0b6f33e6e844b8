package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// --- Document operations ---

// DocumentByPath returns the build record for path, or nil when the
// document was never built.
func (s *Store) DocumentByPath(path string) (*Document, error) {
	d := &Document{}
	var out sql.NullString
	var built sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, hash, output_path, widgets, failures, last_built FROM documents WHERE path = ?", path,
	).Scan(&d.ID, &d.Path, &d.Hash, &out, &d.Widgets, &d.Failures, &built)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document by path: %w", err)
	}
	d.OutputPath = out.String
	d.LastBuilt = built.Time
	return d, nil
}

// PutDocument inserts or replaces the build record for d.Path.
func (s *Store) PutDocument(d *Document) (int64, error) {
	return putDocument(s.db, d)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func putDocument(db queryRower, d *Document) (int64, error) {
	var id int64
	err := db.QueryRow(
		`INSERT INTO documents (path, hash, output_path, widgets, failures, last_built) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, output_path = excluded.output_path,
		   widgets = excluded.widgets, failures = excluded.failures, last_built = excluded.last_built
		 RETURNING id`,
		d.Path, d.Hash, d.OutputPath, d.Widgets, d.Failures, d.LastBuilt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("put document %s: %w", d.Path, err)
	}
	d.ID = id
	return id, nil
}

// Documents lists every build record ordered by path.
func (s *Store) Documents() ([]*Document, error) {
	rows, err := s.db.Query("SELECT id, path, hash, output_path, widgets, failures, last_built FROM documents ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		d := &Document{}
		var out sql.NullString
		var built sql.NullTime
		if err := rows.Scan(&d.ID, &d.Path, &d.Hash, &out, &d.Widgets, &d.Failures, &built); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.OutputPath = out.String
		d.LastBuilt = built.Time
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ResetDocumentHashes forgets every recorded hash so the next build
// re-renders all documents.
func (s *Store) ResetDocumentHashes() error {
	if _, err := s.db.Exec("UPDATE documents SET hash = ''"); err != nil {
		return fmt.Errorf("reset document hashes: %w", err)
	}
	return nil
}
