package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/extract"
	"github.com/usat-research/talentid-cli/internal/pipeline"
)

var (
	processFile string
	processYear int
)

// process re-runs extraction over saved markup. Useful for pages pulled
// down manually when every fetch strategy is blocked.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract source records from a saved HTML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		markup, err := os.ReadFile(processFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", processFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		ex := extract.New(cfg.Extract)
		rows, stats, err := ex.Extract(string(markup))
		if err != nil {
			return eris.Wrapf(err, "extract %s", processFile)
		}

		year := processYear
		if year == 0 {
			year = time.Now().UTC().Year()
		}
		stored := 0
		for _, row := range rows {
			rec, err := pipeline.RowToSource(row, year)
			if err != nil {
				zap.L().Warn("row conversion failed", zap.Error(err))
				continue
			}
			if _, err := st.UpsertSource(ctx, rec); err != nil {
				zap.L().Warn("source upsert failed",
					zap.String("athlete", row.FirstName+" "+row.LastName),
					zap.Error(err),
				)
				continue
			}
			stored++
		}

		zap.L().Info("file processed",
			zap.String("file", processFile),
			zap.Int("rows", len(rows)),
			zap.Int("stored", stored),
			zap.Int("dropped", stats.Dropped),
			zap.Int("deduped", stats.Deduped),
		)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processFile, "file", "", "saved HTML file (required)")
	processCmd.Flags().IntVar(&processYear, "year", 0, "season year (default: current)")
	_ = processCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(processCmd)
}
