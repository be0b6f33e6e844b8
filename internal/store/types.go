package store

import "time"

// Thing is a stored snippet. Summary holds the widget source.
type Thing struct {
	ID           string    `json:"id"`
	Namespace    string    `json:"namespace"`
	Kind         string    `json:"kind"`
	Summary      string    `json:"summary"`
	DateCreated  time.Time `json:"date_created"`
	DateModified time.Time `json:"date_modified"`
}

// Document records the last build of an input document.
type Document struct {
	ID         int64
	Path       string
	Hash       string
	OutputPath string
	Widgets    int
	Failures   int
	LastBuilt  time.Time
}
