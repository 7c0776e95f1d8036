package main

import (
	"fmt"
	"log/slog"

	"github.com/sensiblebit/winckit/internal"
	"github.com/spf13/cobra"
)

var (
	exportOutDir   string
	exportPKCS12   bool
	exportJKS      bool
	exportPassword string
	exportMaxSize  int64
)

var exportCmd = &cobra.Command{
	Use:   "export <image>",
	Short: "Extract anchors, certificates and keys from a firmware image",
	Long:  "Write every trust anchor public key, TLS store certificate and private key to PEM files, all certificates to chain.p7b, and a manifest.yaml describing them. Optionally bundle the device identity as PKCS#12 and/or JKS.",
	Example: `  winckit export m2m_aio_3a0.bin -o ./out
  winckit export dump.bin -o ./out --p12 --jks --password changeit`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutDir, "out", "o", "./winc-export", "Output directory (must not contain a previous export)")
	exportCmd.Flags().BoolVar(&exportPKCS12, "p12", false, "Also write the device identity as identity.p12")
	exportCmd.Flags().BoolVar(&exportJKS, "jks", false, "Also write the device identity as identity.jks")
	exportCmd.Flags().StringVar(&exportPassword, "password", "changeit", "Password for identity.p12 and identity.jks")
	exportCmd.Flags().Int64Var(&exportMaxSize, "max-size", internal.DefaultMaxImageSize, "Maximum image size in bytes")

	registerCompletion(exportCmd, completionInput{"out", directoryCompletion})
}

func runExport(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	data, err := internal.ReadImage(args[0], exportMaxSize)
	if err != nil {
		return err
	}

	files, err := internal.ExportImage(internal.ExportInput{
		Data:     data,
		Path:     args[0],
		Layout:   layout,
		OutDir:   exportOutDir,
		Password: exportPassword,
		PKCS12:   exportPKCS12,
		JKS:      exportJKS,
	})
	if err != nil {
		return fmt.Errorf("exporting %s: %w", args[0], err)
	}

	slog.Debug("export complete", "path", args[0], "out", exportOutDir, "files", len(files))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d file(s) to %s\n", len(files), exportOutDir)
	for _, name := range files {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
	return nil
}
