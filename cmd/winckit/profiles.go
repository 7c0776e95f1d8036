package main

import (
	"fmt"

	"github.com/sensiblebit/winckit/internal"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List firmware layout profiles",
	Long:  "List the built-in layout profile and any loaded from --profiles-file, with their store offsets.",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	profiles, err := loadProfiles()
	if err != nil {
		return err
	}
	for _, p := range profiles.Profiles {
		marker := " "
		if p.Name == profiles.DefaultProfile {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s root=%#x tls=%#x  %s\n", marker, p.Name, p.RootStoreOffset, p.TLSStoreOffset, p.Description)
	}
	return nil
}

func loadProfiles() (internal.ProfilesYAML, error) {
	if profilesFile == "" {
		return internal.BuiltinProfiles(), nil
	}
	return internal.LoadProfiles(profilesFile)
}
