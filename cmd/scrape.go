package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape result pages into source records without matching",
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

		counts := p.Year(year).ScrapeSources(ctx, urls)
		zap.L().Info("scrape complete",
			zap.Int("fetched", counts.Fetched),
			zap.Int("extracted", counts.Extracted),
			zap.Int("skipped", counts.Skipped),
			zap.Int("errors", counts.Errors),
		)
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match unlinked source records against swim profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts := p.MatchSources(ctx)
		zap.L().Info("match complete",
			zap.Int("scored", counts.Scored),
			zap.Int("auto_verified", counts.AutoVerified),
			zap.Int("manual_review", counts.ManualReview),
			zap.Int("no_match", counts.NoMatch),
			zap.Int("skipped", counts.Skipped),
			zap.Int("errors", counts.Errors),
		)
		return nil
	},
}

func init() {
	addTargetFlags(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(matchCmd)
}
