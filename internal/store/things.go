package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Thing operations ---

// InsertThing stores t, assigning an ID and timestamps when they are unset.
func (s *Store) InsertThing(t *Thing) error {
	return insertThing(s.db, t)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertThing(db execer, t *Thing) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.DateCreated.IsZero() {
		t.DateCreated = now
	}
	if t.DateModified.IsZero() {
		t.DateModified = t.DateCreated
	}
	_, err := db.Exec(
		`INSERT INTO things (id, namespace, kind, summary, date_created, date_modified) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET namespace = excluded.namespace, kind = excluded.kind,
		   summary = excluded.summary, date_modified = excluded.date_modified`,
		t.ID, t.Namespace, t.Kind, t.Summary, t.DateCreated, t.DateModified,
	)
	if err != nil {
		return fmt.Errorf("insert thing: %w", err)
	}
	return nil
}

// UpdateThingSummary replaces a thing's source and bumps its modified time.
func (s *Store) UpdateThingSummary(id, summary string) error {
	res, err := s.db.Exec(
		"UPDATE things SET summary = ?, date_modified = ? WHERE id = ?",
		summary, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update thing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update thing %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteThing removes a thing.
func (s *Store) DeleteThing(id string) error {
	res, err := s.db.Exec("DELETE FROM things WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete thing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete thing %s: %w", id, ErrNotFound)
	}
	return nil
}

const thingColumns = "id, namespace, kind, summary, date_created, date_modified"

func scanThing(scanner interface{ Scan(...any) error }) (*Thing, error) {
	t := &Thing{}
	if err := scanner.Scan(&t.ID, &t.Namespace, &t.Kind, &t.Summary, &t.DateCreated, &t.DateModified); err != nil {
		return nil, err
	}
	return t, nil
}

// ThingByID returns the thing with the given ID, or ErrNotFound.
func (s *Store) ThingByID(id string) (*Thing, error) {
	t, err := scanThing(s.db.QueryRow("SELECT "+thingColumns+" FROM things WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("thing by id: %w", err)
	}
	return t, nil
}

func (s *Store) queryThings(query string, args ...any) ([]*Thing, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query things: %w", err)
	}
	defer rows.Close()
	var things []*Thing
	for rows.Next() {
		t, err := scanThing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thing: %w", err)
		}
		things = append(things, t)
	}
	return things, rows.Err()
}

// ThingsByNamespace lists a namespace's things, oldest first. An empty kind
// matches every kind.
func (s *Store) ThingsByNamespace(namespace, kind string) ([]*Thing, error) {
	if kind == "" {
		return s.queryThings("SELECT "+thingColumns+" FROM things WHERE namespace = ? ORDER BY date_created, id", namespace)
	}
	return s.queryThings("SELECT "+thingColumns+" FROM things WHERE namespace = ? AND kind = ? ORDER BY date_created, id", namespace, kind)
}

// AllThings lists every thing ordered by namespace and creation time.
func (s *Store) AllThings() ([]*Thing, error) {
	return s.queryThings("SELECT " + thingColumns + " FROM things ORDER BY namespace, date_created, id")
}

// Namespaces lists the distinct namespaces that hold at least one thing.
func (s *Store) Namespaces() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT namespace FROM things ORDER BY namespace")
	if err != nil {
		return nil, fmt.Errorf("namespaces: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}
