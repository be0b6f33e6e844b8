package store

// DataStore is the interface for build-phase writes. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel builds)
// implement it.
type DataStore interface {
	PutDocument(d *Document) (int64, error)
	// ThingByID lets documents embed stored snippets by reference.
	ThingByID(id string) (*Thing, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
