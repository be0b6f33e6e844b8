package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jward/thingpad"
	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/surface"
)

var (
	flagNamespace string
	flagKind      string
	flagWidth     int
	flagHeight    int
	flagPNG       string
	flagCopy      bool
	flagOut       string
)

// errEvalFailed is returned after the failure was already printed.
var errEvalFailed = errors.New("evaluation failed")

var addCmd = &cobra.Command{
	Use:   "add [source|-]",
	Short: "Store a new snippet",
	Long:  "Stores a snippet as a thing. Reads the source from stdin when it is \"-\"; with no argument the language placeholder is stored.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snippets of a namespace",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var evalCmd = &cobra.Command{
	Use:   "eval [source|-]",
	Short: "Evaluate a snippet on a fresh surface",
	Long:  "Runs the snippet as the body of function(canvas, ctx) and prints the JSON of its return value.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEval,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a namespace as an evaluated HTML page",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

var checkCmd = &cobra.Command{
	Use:   "check [source|-]",
	Short: "Report JavaScript syntax problems in a snippet",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	for _, c := range []*cobra.Command{addCmd, listCmd, renderCmd} {
		c.Flags().StringVar(&flagNamespace, "namespace", "", "thing namespace (default: server.namespace from config)")
	}
	for _, c := range []*cobra.Command{addCmd, evalCmd} {
		c.Flags().StringVar(&flagKind, "kind", "javascript", "language: javascript|risor (or marker js)")
	}
	evalCmd.Flags().IntVar(&flagWidth, "width", surface.DefaultWidth, "surface width")
	evalCmd.Flags().IntVar(&flagHeight, "height", surface.DefaultHeight, "surface height")
	evalCmd.Flags().StringVar(&flagPNG, "png", "", "write the surface to this PNG file")
	evalCmd.Flags().BoolVar(&flagCopy, "copy", false, "copy the output to the clipboard")
	renderCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the page to a file instead of stdout")
}

func namespace() string {
	if flagNamespace != "" {
		return flagNamespace
	}
	return cfg.Server.Namespace
}

func toCLIThing(t *thingpad.Thing) CLIThing {
	return CLIThing{
		ID:           t.ID,
		Namespace:    t.Namespace,
		Kind:         t.Kind,
		Summary:      t.Summary,
		DateCreated:  t.DateCreated,
		DateModified: t.DateModified,
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	src := ""
	if len(args) > 0 {
		var err error
		if src, err = readSource(cmd, args); err != nil {
			return outputError(cmd, "add", err)
		}
	}
	e, err := openEngine("things")
	if err != nil {
		return outputError(cmd, "add", err)
	}
	defer e.Close()

	t, err := e.AddThing(namespace(), flagKind, src)
	if err != nil {
		return outputError(cmd, "add", err)
	}
	return outputResult(cmd, CLIResult{Command: "add", Results: toCLIThing(t)})
}

func runList(cmd *cobra.Command, _ []string) error {
	e, err := openEngine("things")
	if err != nil {
		return outputError(cmd, "list", err)
	}
	defer e.Close()

	things, err := e.Things(namespace())
	if err != nil {
		return outputError(cmd, "list", err)
	}
	out := make([]CLIThing, 0, len(things))
	for _, t := range things {
		out = append(out, toCLIThing(t))
	}
	return outputResult(cmd, CLIResult{Command: "list", Results: out})
}

func runEval(cmd *cobra.Command, args []string) error {
	src, err := readSource(cmd, args)
	if err != nil {
		return outputError(cmd, "eval", err)
	}
	e, err := openEngineNoStore("eval")
	if err != nil {
		return outputError(cmd, "eval", err)
	}
	defer e.Close()

	c := e.NewSurface(flagWidth, flagHeight)
	sess, err := e.NewSession(flagKind, c)
	if err != nil {
		return outputError(cmd, "eval", err)
	}
	res := evaluate(cmd.Context(), sess, src)
	res.Width, res.Height, res.Painted = c.Width(), c.Height(), c.PaintedPixels()

	if flagPNG != "" {
		var buf bytes.Buffer
		if err := c.EncodePNG(&buf); err != nil {
			return outputError(cmd, "eval", err)
		}
		if err := os.WriteFile(flagPNG, buf.Bytes(), 0o644); err != nil {
			return outputError(cmd, "eval", fmt.Errorf("writing %s: %w", flagPNG, err))
		}
		res.PNG = flagPNG
	}
	if flagCopy {
		if err := clipboard.WriteAll(res.Output); err != nil {
			return outputError(cmd, "eval", fmt.Errorf("copy to clipboard: %w", err))
		}
		res.Copied = true
	}

	if err := outputResult(cmd, CLIResult{Command: "eval", Results: res}); err != nil {
		return err
	}
	if res.Failed {
		errorHandled = true
		return errEvalFailed
	}
	return nil
}

func evaluate(ctx context.Context, sess script.Session, src string) CLIEval {
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := sess.Evaluate(ctx, src)
	if err == nil {
		return CLIEval{Output: out}
	}
	res := CLIEval{Output: err.Error(), Failed: true, Kind: script.KindRuntime}
	if f, ok := script.AsFailure(err); ok {
		res.Kind = f.Kind
	}
	return res
}

func runRender(cmd *cobra.Command, _ []string) error {
	e, err := openEngine("render")
	if err != nil {
		return outputError(cmd, "render", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := e.ThingsPage(ctx, namespace(), thingpad.PageOptions{})
	if err != nil {
		return outputError(cmd, "render", err)
	}
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return outputError(cmd, "render", err)
	}
	if flagOut == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(flagOut, buf.Bytes(), 0o644); err != nil {
		return outputError(cmd, "render", fmt.Errorf("writing %s: %w", flagOut, err))
	}
	widgets, failures := p.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "Rendered %d widget(s), %d failure(s) to %s\n", widgets, failures, flagOut)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	src, err := readSource(cmd, args)
	if err != nil {
		return outputError(cmd, "check", err)
	}
	e, err := openEngineNoStore("check")
	if err != nil {
		return outputError(cmd, "check", err)
	}
	defer e.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	diags, err := e.Check(ctx, src)
	if err != nil {
		return outputError(cmd, "check", err)
	}
	out := make([]CLIDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, CLIDiagnostic{Line: d.Line, Column: d.Column, Message: d.Message})
	}
	if err := outputResult(cmd, CLIResult{Command: "check", Results: out}); err != nil {
		return err
	}
	if len(out) > 0 {
		errorHandled = true
		return fmt.Errorf("%d syntax problem(s)", len(out))
	}
	return nil
}
