package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-qualifier/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List available qualification profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Pipeline.ProfilesFile != "" {
			if err := profile.LoadCustomProfiles(cfg.Pipeline.ProfilesFile); err != nil {
				return err
			}
		}

		names := profile.Names()
		sort.Strings(names)
		for _, name := range names {
			p, err := profile.Get(name)
			if err != nil {
				return err
			}
			style := ""
			if p.HasStyle {
				style = ", style classification with --screenshots"
			}
			fmt.Printf("%-20s qualifies on %q (%s%s)\n", p.Name, p.QualifyKey, p.QualifyLabel, style)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
