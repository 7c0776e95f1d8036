package main

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sensiblebit/winckit"
	"github.com/sensiblebit/winckit/internal"
	"github.com/sensiblebit/winckit/internal/certstore"
	"github.com/spf13/cobra"
)

var (
	scanDBPath  string
	scanJSON    bool
	scanRoots   string
	scanDump    bool
	scanMaxSize int64
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Catalog anchors, certificates and keys across firmware images",
	Long:  "Scan a firmware image or a directory of images and print a summary of the trust anchors, certificates and keys found. Use --db to accumulate a SQLite catalog across runs.",
	Example: `  winckit scan ./firmware
  winckit scan ./firmware --db catalog.db --roots device-ca.pem
  winckit scan fw.bin --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDBPath, "db", "d", "", "SQLite catalog path, loaded before and saved after the scan (default: in-memory)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the summary as JSON")
	scanCmd.Flags().StringVar(&scanRoots, "roots", "", "PEM file of trusted roots used to classify certificates as untrusted")
	scanCmd.Flags().BoolVar(&scanDump, "dump", false, "Log every cataloged record at debug level")
	scanCmd.Flags().Int64Var(&scanMaxSize, "max-size", internal.DefaultMaxImageSize, "Maximum image size in bytes")

	registerCompletion(scanCmd, completionInput{"db", fileCompletion})
	registerCompletion(scanCmd, completionInput{"roots", fileCompletion})
}

func runScan(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}

	cfg := &internal.Config{
		InputPath:    args[0],
		Layout:       layout,
		Store:        certstore.NewMemStore(),
		MaxImageSize: scanMaxSize,
	}
	if scanRoots != "" {
		if cfg.RootPool, err = loadRootPool(scanRoots); err != nil {
			return err
		}
	}

	if scanDBPath != "" {
		if err := internal.LoadCatalog(cfg.Store, scanDBPath); err != nil {
			return err
		}
	}

	decoded, err := internal.ScanPath(cfg)
	if err != nil {
		return err
	}

	if scanDBPath != "" {
		if err := internal.SaveCatalog(cfg.Store, scanDBPath); err != nil {
			return err
		}
	}
	if scanDump {
		cfg.Store.DumpDebug()
	}

	summary := cfg.Store.ScanSummary(certstore.ScanSummaryInput{RootPool: cfg.RootPool})
	if scanJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), internal.FormatScanSummary(summary, decoded))
	return nil
}

func loadRootPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roots: %w", err)
	}
	certs, err := winckit.ParsePEMCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("parsing roots %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}
