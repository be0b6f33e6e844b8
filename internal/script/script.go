// Package script runs widget code inside embedded interpreters. Each
// interpreter is exposed as a Language that opens one Session per widget; a
// session binds the widget's canvas and 2D context as the two parameters of
// the function the user code is wrapped in.
package script

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jward/thingpad/internal/surface"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 5 * time.Second

// ErrUnknownLanguage is returned when no language matches a marker, kind or
// file extension.
var ErrUnknownLanguage = errors.New("script: unknown language")

// Failure kinds.
const (
	KindSyntax    = "syntax"
	KindRuntime   = "runtime"
	KindSerialize = "serialize"
	KindInterrupt = "interrupt"
)

// Failure is an evaluation failure: the code did not compile, threw, could
// not be serialised, or was interrupted. Message is what the widget shows.
type Failure struct {
	Kind    string
	Message string
}

func (f *Failure) Error() string { return f.Message }

// AsFailure reports whether err is an evaluation failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Options configures new sessions.
type Options struct {
	// Timeout interrupts an evaluation that runs longer. Zero disables it.
	Timeout time.Duration
}

// Session evaluates code for a single widget. Sessions are not safe for
// concurrent use. JavaScript sessions keep interpreter state between
// evaluations; Risor sessions start from a fresh VM each time.
type Session interface {
	// Evaluate runs source as the body of a function taking (canvas, ctx)
	// and returns the JSON text of its return value. A returned error is
	// always a *Failure; an absent return value yields "".
	Evaluate(ctx context.Context, source string) (string, error)
}

// Language is an embedded interpreter usable by widgets.
type Language interface {
	// Name is the thing kind stored for snippets in this language.
	Name() string
	// Marker is the block category marker; child markers derive from it.
	Marker() string
	// Extensions lists file extensions of standalone snippets.
	Extensions() []string
	// Placeholder is the body of a newly created empty snippet.
	Placeholder() string
	// Signature is the function header shown around the source input.
	Signature() string
	NewSession(c *surface.Canvas, opts Options) Session
}

// Registry holds the languages available to an engine, keyed by marker.
type Registry struct {
	byMarker map[string]Language
}

// NewRegistry creates a registry of the given languages.
func NewRegistry(langs ...Language) *Registry {
	r := &Registry{byMarker: make(map[string]Language, len(langs))}
	for _, l := range langs {
		r.byMarker[l.Marker()] = l
	}
	return r
}

// DefaultRegistry contains JavaScript and Risor.
func DefaultRegistry() *Registry {
	return NewRegistry(JavaScript{}, Risor{})
}

// Languages returns the registered languages ordered by marker.
func (r *Registry) Languages() []Language {
	langs := make([]Language, 0, len(r.byMarker))
	for _, l := range r.byMarker {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Marker() < langs[j].Marker() })
	return langs
}

// ByMarker finds a language by block marker.
func (r *Registry) ByMarker(marker string) (Language, bool) {
	l, ok := r.byMarker[marker]
	return l, ok
}

// ByKind finds a language by thing kind, accepting the marker as an alias
// ("js" for "javascript").
func (r *Registry) ByKind(kind string) (Language, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, l := range r.byMarker {
		if l.Name() == kind || l.Marker() == kind {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: kind %q", ErrUnknownLanguage, kind)
}

// ForFile finds a language by file extension.
func (r *Registry) ForFile(path string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range r.byMarker {
		for _, e := range l.Extensions() {
			if e == ext {
				return l, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: file %s", ErrUnknownLanguage, path)
}
