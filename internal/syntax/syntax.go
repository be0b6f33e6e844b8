// Package syntax checks JavaScript widget code with tree-sitter before it is
// stored or evaluated. Code is parsed as the body of the same function wrapper
// the evaluator uses, so a bare "return" is valid.
package syntax

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

const (
	wrapperHead = "(function(canvas, ctx) {\n"
	wrapperTail = "\n})"
)

// Diagnostic is one syntax problem. Line and Column are 1-based and relative
// to the checked source, not the wrapper.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// Check parses src and returns its diagnostics ordered by position. A nil
// slice means the code parsed cleanly.
func Check(ctx context.Context, src string) ([]Diagnostic, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	full := []byte(wrapperHead + src + wrapperTail)
	tree, err := parser.ParseCtx(ctx, nil, full)
	if err != nil {
		return nil, fmt.Errorf("syntax: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var diags []Diagnostic
	collect(root, full, &diags)
	lines := strings.Count(src, "\n") + 1
	for i := range diags {
		if diags[i].Line > lines {
			diags[i].Line = lines
		}
	}
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Column < diags[j].Column
	})
	return diags, nil
}

// shorten cuts s to at most n runes, marking the cut with "...".
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func collect(n *sitter.Node, src []byte, out *[]Diagnostic) {
	switch {
	case n.IsMissing():
		*out = append(*out, diagnostic(n, "missing "+n.Type()))
		return
	case n.IsError():
		text := shorten(strings.TrimSpace(n.Content(src)), 20)
		msg := "unexpected input"
		if text != "" {
			msg = fmt.Sprintf("unexpected %q", text)
		}
		*out = append(*out, diagnostic(n, msg))
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collect(n.Child(i), src, out)
	}
}

// diagnostic maps a node position back into the unwrapped source. Errors in
// the wrapper itself land on the first or last line.
func diagnostic(n *sitter.Node, msg string) Diagnostic {
	p := n.StartPoint()
	line := int(p.Row)
	if line < 1 {
		line = 1
	}
	return Diagnostic{Line: line, Column: int(p.Column) + 1, Message: msg}
}
