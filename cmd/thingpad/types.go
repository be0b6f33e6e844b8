package main

import "time"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIThing is a JSON-friendly stored snippet.
type CLIThing struct {
	ID           string    `json:"id"`
	Namespace    string    `json:"namespace"`
	Kind         string    `json:"kind"`
	Summary      string    `json:"summary"`
	DateCreated  time.Time `json:"date_created"`
	DateModified time.Time `json:"date_modified"`
}

// CLIEval is the outcome of evaluating one snippet.
type CLIEval struct {
	Output string `json:"output"`
	Failed bool   `json:"failed"`
	Kind   string `json:"kind,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Painted counts non-transparent surface pixels.
	Painted int    `json:"painted"`
	PNG     string `json:"png,omitempty"`
	Copied  bool   `json:"copied,omitempty"`
}

// CLIDiagnostic is one syntax problem.
type CLIDiagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// CLIBuild summarises a build run.
type CLIBuild struct {
	Built           int      `json:"built"`
	Skipped         int      `json:"skipped"`
	Widgets         int      `json:"widgets"`
	Failures        int      `json:"failures"`
	Outputs         []string `json:"outputs"`
	SettingsChanged bool     `json:"settings_changed"`
	Duration        string   `json:"duration"`
}

// CLIArchive reports an export or import.
type CLIArchive struct {
	Path   string `json:"path"`
	Things int    `json:"things"`
}
