package thingpad

import (
	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/store"
	"github.com/jward/thingpad/internal/syntax"
)

// Public type aliases for internal types used in the Engine API.

type Store = store.Store
type Thing = store.Thing
type Document = store.Document
type Language = script.Language
type Failure = script.Failure
type Diagnostic = syntax.Diagnostic
