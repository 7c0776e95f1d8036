package main

import (
	"fmt"

	"github.com/sensiblebit/winckit/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat        string
	inspectIdentifyRoots bool
	inspectMaxSize       int64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Display the trust anchors and TLS store entries of a firmware image",
	Long:  "Decode both certificate stores of a firmware image (or stdin with \"-\") and describe every trust anchor, certificate, private key and unrecognized entry.",
	Example: `  winckit inspect m2m_aio_3a0.bin
  winckit inspect dump.bin --format table --identify-roots
  winckit inspect dump.bin --root-offset 0 --tls-offset 0x1000 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "", "Output format: text, json or table (default: text on a terminal, json otherwise)")
	inspectCmd.Flags().BoolVar(&inspectIdentifyRoots, "identify-roots", false, "Match anchors against the Mozilla root store")
	inspectCmd.Flags().Int64Var(&inspectMaxSize, "max-size", internal.DefaultMaxImageSize, "Maximum image size in bytes")

	registerCompletion(inspectCmd, completionInput{"format", fixedCompletion("text", "json", "table")})
}

func runInspect(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	data, err := internal.ReadImage(args[0], inspectMaxSize)
	if err != nil {
		return err
	}

	results, err := internal.InspectImage(internal.InspectInput{
		Data:          data,
		Layout:        layout,
		IdentifyRoots: inspectIdentifyRoots,
	})
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", args[0], err)
	}

	format := inspectFormat
	if format == "" {
		format = "json"
		if internal.IsTerminal(cmd.OutOrStdout()) {
			format = "text"
		}
	}
	output, err := internal.FormatInspectResults(results, format)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
