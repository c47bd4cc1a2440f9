package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	runManifest string
	runURLs     []string
	runYear     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full batch: scrape result pages, then match new athletes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		urls, year, err := resolveTargets()
		if err != nil {
			return err
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := p.Year(year).Run(ctx, urls)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// resolveTargets merges the manifest and any --url flags. Flags alone are
// enough for one-off pages; the manifest carries the season year.
func resolveTargets() ([]string, int, error) {
	urls := runURLs
	year := runYear

	if runManifest != "" {
		m, err := loadManifest(runManifest)
		if err != nil {
			return nil, 0, err
		}
		urls = append(m.AllURLs(), urls...)
		if year == 0 {
			year = m.Year
		}
	}
	if len(urls) == 0 {
		return nil, 0, eris.New("no result pages: pass --manifest or --url")
	}
	return urls, year, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runManifest, "manifest", "", "YAML manifest of result pages")
	cmd.Flags().StringArrayVar(&runURLs, "url", nil, "result page URL (repeatable)")
	cmd.Flags().IntVar(&runYear, "year", 0, "season year (default: manifest, then current year)")
}

func init() {
	addTargetFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
