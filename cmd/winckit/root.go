package main

import (
	"github.com/sensiblebit/winckit"
	"github.com/sensiblebit/winckit/internal"
	"github.com/spf13/cobra"
)

var (
	logLevel     string
	profileName  string
	profilesFile string
	rootOffset   offsetValue
	tlsOffset    offsetValue
)

var rootCmd = &cobra.Command{
	Use:   "winckit",
	Short: "ATWINC firmware certificate store tool",
	Long:  "Decode the Root Cert Store and TLS Store of ATWINC15x0/3400 firmware images, inspect trust anchors and device credentials, and export them as PEM, PKCS#7, PKCS#12 or JKS.",
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		internal.SetupLogger(logLevel, cmd.ErrOrStderr())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Firmware layout profile (default: the profiles file default, or "+internal.BuiltinProfileName+")")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles-file", "", "YAML file of firmware layout profiles")
	rootCmd.PersistentFlags().Var(&rootOffset, "root-offset", "Root Cert Store offset, overrides the profile (e.g. 0x4000)")
	rootCmd.PersistentFlags().Var(&tlsOffset, "tls-offset", "TLS Store offset, overrides the profile (e.g. 0x5000)")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"profile", profileCompletion})
	registerCompletion(rootCmd, completionInput{"profiles-file", fileCompletion})

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(profilesCmd)
}

// resolveLayout applies --profile, --profiles-file and the offset overrides.
func resolveLayout() (winckit.Layout, error) {
	return internal.ResolveLayout(internal.LayoutInput{
		ProfilesFile:    profilesFile,
		Profile:         profileName,
		RootStoreOffset: rootOffset.ptr(),
		TLSStoreOffset:  tlsOffset.ptr(),
	})
}
