package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/thingpad"
)

var (
	flagBuildOut string
	flagForce    bool
	flagSerial   bool
)

var buildCmd = &cobra.Command{
	Use:   "build <dir | file...>",
	Short: "Render HTML and markdown documents with every widget evaluated",
	Long: "Builds a directory (respecting .gitignore when it is a git checkout) or a list of files. " +
		"Documents whose content and settings are unchanged since the last build are skipped.",
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&flagBuildOut, "out", "o", "_site", "output directory")
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "rebuild every document")
	buildCmd.Flags().BoolVar(&flagSerial, "serial", false, "build one document at a time")
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	e, err := openEngine("build", thingpad.WithParallel(!flagSerial))
	if err != nil {
		return outputError(cmd, "build", err)
	}
	defer e.Close()

	changed := e.SettingsChanged()
	if flagForce {
		if err := e.Store().ResetDocumentHashes(); err != nil {
			return outputError(cmd, "build", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var res *thingpad.BuildResult
	if info, statErr := os.Stat(args[0]); statErr == nil && info.IsDir() && len(args) == 1 {
		res, err = e.BuildDirectory(ctx, args[0], flagBuildOut)
	} else {
		res, err = e.BuildFiles(ctx, args, flagBuildOut)
	}
	if res == nil {
		res = &thingpad.BuildResult{}
	}
	out := CLIBuild{
		Built:           res.Built,
		Skipped:         res.Skipped,
		Widgets:         res.Widgets,
		Failures:        res.Failures,
		Outputs:         res.Outputs,
		SettingsChanged: changed,
		Duration:        time.Since(start).Round(time.Millisecond).String(),
	}
	if out.Outputs == nil {
		out.Outputs = []string{}
	}
	if err != nil {
		return outputError(cmd, "build", fmt.Errorf("building: %w", err))
	}
	return outputResult(cmd, CLIResult{Command: "build", Results: out})
}
