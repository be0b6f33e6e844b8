package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagExportNS string

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write things to an lz4-compressed archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load things from an archive, replacing things with the same id",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportNS, "namespace", "", "export only this namespace (default: all)")
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEngine("archive")
	if err != nil {
		return outputError(cmd, "export", err)
	}
	defer e.Close()

	f, err := os.Create(args[0])
	if err != nil {
		return outputError(cmd, "export", fmt.Errorf("creating %s: %w", args[0], err))
	}
	n, err := e.Store().Export(f, flagExportNS)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return outputError(cmd, "export", err)
	}
	return outputResult(cmd, CLIResult{Command: "export", Results: CLIArchive{Path: args[0], Things: n}})
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := openEngine("archive")
	if err != nil {
		return outputError(cmd, "import", err)
	}
	defer e.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return outputError(cmd, "import", fmt.Errorf("opening %s: %w", args[0], err))
	}
	defer f.Close()
	n, err := e.Store().Import(f)
	if err != nil {
		return outputError(cmd, "import", err)
	}
	return outputResult(cmd, CLIResult{Command: "import", Results: CLIArchive{Path: args[0], Things: n}})
}
