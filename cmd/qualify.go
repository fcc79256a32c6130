package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-qualifier/internal/model"
	"github.com/sells-group/icp-qualifier/internal/pipeline"
	"github.com/sells-group/icp-qualifier/internal/profile"
	"github.com/sells-group/icp-qualifier/internal/table"
)

var (
	qualifyInput       string
	qualifyOutput      string
	qualifyProfile     string
	qualifyScreenshots bool
	qualifyWorkers     int
	qualifyLimit       int
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Qualify companies from an input table",
	Long:  "Reads a CSV/TSV/XLSX of companies, analyzes each website against the active profile, and writes results to the output CSV after every row. Re-running with the same output file resumes where the last run stopped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyQualifyFlags()

		if cfg.Pipeline.ProfilesFile != "" {
			if err := profile.LoadCustomProfiles(cfg.Pipeline.ProfilesFile); err != nil {
				return err
			}
		}
		prof, err := profile.Get(cfg.Pipeline.Profile)
		if err != nil {
			return err
		}

		tbl, err := table.Load(cfg.Pipeline.InputFile)
		if err != nil {
			return err
		}
		if qualifyLimit > 0 && len(tbl.Rows) > qualifyLimit {
			tbl.Rows = tbl.Rows[:qualifyLimit]
		}

		existing := table.LoadExisting(cfg.Pipeline.OutputFile)
		resultCols := prof.ResultColumns(cfg.Pipeline.UseScreenshots)
		table.Merge(tbl, existing, resultCols)

		needBrowser := cfg.Pipeline.UseScreenshots || cfg.Pipeline.RenderFallback
		env, err := initEnv(cmd.Context(), needBrowser)
		if err != nil {
			return err
		}
		defer env.Close()

		p := pipeline.New(env.Fetcher, env.Renderer, env.Classifier, pipeline.Options{
			Profile:        prof,
			Workers:        cfg.Pipeline.Workers,
			UseScreenshots: cfg.Pipeline.UseScreenshots,
			RenderFallback: cfg.Pipeline.RenderFallback,
			OutputFile:     cfg.Pipeline.OutputFile,
			GCEvery:        cfg.Pipeline.GCEvery,
		})

		snap, err := p.Run(cmd.Context(), tbl, existing)
		if err != nil {
			return err
		}

		printSummary(prof, snap, cfg.Pipeline.UseScreenshots)
		fmt.Printf("Results written to %s\n", cfg.Pipeline.OutputFile)
		return nil
	},
}

// applyQualifyFlags lets explicit flags override the config/env values.
func applyQualifyFlags() {
	if qualifyInput != "" {
		cfg.Pipeline.InputFile = qualifyInput
	}
	if qualifyOutput != "" {
		cfg.Pipeline.OutputFile = qualifyOutput
	}
	if qualifyProfile != "" {
		cfg.Pipeline.Profile = qualifyProfile
	}
	if qualifyScreenshots {
		cfg.Pipeline.UseScreenshots = true
	}
	if qualifyWorkers > 0 {
		cfg.Pipeline.Workers = qualifyWorkers
	}
}

func printSummary(prof *profile.Profile, snap model.StatsSnapshot, useScreenshots bool) {
	fmt.Println("\n=== FINAL SUMMARY ===")
	fmt.Printf("Done: %s=%d | not=%d | unreachable=%d | error=%d\n",
		prof.QualifyLabel, snap.Qualified, snap.NotQualified, snap.Unreachable, snap.Errors)
	if prof.HasStyle && useScreenshots {
		fmt.Printf("Styles: Legacy=%d | Mixed=%d | Modern=%d\n",
			snap.Styles[profile.StyleLegacy], snap.Styles[profile.StyleMixed], snap.Styles[profile.StyleModern])
	}
}

func init() {
	qualifyCmd.Flags().StringVarP(&qualifyInput, "input", "i", "", "input file (csv/tsv/xlsx, default from config)")
	qualifyCmd.Flags().StringVarP(&qualifyOutput, "output", "o", "", "output CSV (default from config)")
	qualifyCmd.Flags().StringVarP(&qualifyProfile, "profile", "p", "", "qualification profile (default from config)")
	qualifyCmd.Flags().BoolVar(&qualifyScreenshots, "screenshots", false, "capture screenshots for visual style classification")
	qualifyCmd.Flags().IntVarP(&qualifyWorkers, "workers", "w", 0, "concurrent workers (default from config)")
	qualifyCmd.Flags().IntVar(&qualifyLimit, "limit", 0, "process at most N input rows (0 = all)")
	rootCmd.AddCommand(qualifyCmd)
}
