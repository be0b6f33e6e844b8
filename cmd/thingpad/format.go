package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// outputResult writes result in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIThing:
		formatThingsText(w, []CLIThing{v})
	case []CLIThing:
		formatThingsText(w, v)
	case CLIEval:
		formatEvalText(w, v)
	case []CLIDiagnostic:
		for _, d := range v {
			fmt.Fprintf(w, "%d:%d: %s\n", d.Line, d.Column, d.Message)
		}
	case CLIBuild:
		formatBuildText(w, v)
	case CLIArchive:
		fmt.Fprintf(w, "%s: %d thing(s)\n", v.Path, v.Things)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// formatThingsText formats things as aligned columns.
func formatThingsText(w io.Writer, things []CLIThing) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCREATED\tSOURCE")
	for _, t := range things {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			t.ID, t.Kind, t.DateCreated.Format("2006-01-02 15:04"), firstLine(t.Summary))
	}
	tw.Flush()
}

func formatEvalText(w io.Writer, v CLIEval) {
	if v.Failed {
		fmt.Fprintf(w, "error (%s): %s\n", v.Kind, v.Output)
	} else {
		fmt.Fprintln(w, v.Output)
	}
	if v.PNG != "" {
		fmt.Fprintf(w, "surface %dx%d written to %s\n", v.Width, v.Height, v.PNG)
	}
}

func formatBuildText(w io.Writer, v CLIBuild) {
	fmt.Fprintf(w, "Built %d, skipped %d document(s) in %s\n", v.Built, v.Skipped, v.Duration)
	fmt.Fprintf(w, "Widgets: %d, failures: %d\n", v.Widgets, v.Failures)
	if v.SettingsChanged {
		fmt.Fprintln(w, "Settings changed since the last build")
	}
	for _, o := range v.Outputs {
		fmt.Fprintf(w, "  %s\n", o)
	}
}

// firstLine shortens a snippet for table output.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	more := false
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s, more = s[:i], true
	}
	if r := []rune(s); len(r) > 48 {
		s, more = string(r[:48]), true
	}
	if more {
		s += " …"
	}
	return s
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
