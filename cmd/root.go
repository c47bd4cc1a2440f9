package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "talentid",
	Short: "Cross-sport athlete identification pipeline",
	Long:  "Scrapes track performance lists, matches runners against swim profiles with explainable fuzzy scoring, and classifies times against benchmark tiers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
