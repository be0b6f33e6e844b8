package store

import "fmt"

// CommitBatch writes all buffered records from a BatchedStore into SQLite
// within a single transaction. Fake IDs on the buffered records are replaced
// by the real row IDs.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	batch.mu.Lock()
	defer batch.mu.Unlock()

	for i := range batch.Documents {
		d := &batch.Documents[i]
		if _, err := putDocument(tx, d); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
