package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/standards"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

var standardsPath string

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Load the benchmark standards feed into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := standardsPath
		if path == "" {
			path = cfg.Standards.Path
		}

		side := timeparse.SideFromString(cfg.Standards.DualTimeSide)
		loaded, stats, err := standards.Load(path, side)
		if err != nil {
			return eris.Wrapf(err, "load standards %s", path)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if err := st.ReplaceBenchmarks(ctx, loaded); err != nil {
			return eris.Wrap(err, "replace benchmarks")
		}

		zap.L().Info("standards loaded",
			zap.String("file", path),
			zap.Int("rows", stats.Rows),
			zap.Int("standards", stats.Standards),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

func init() {
	standardsCmd.Flags().StringVar(&standardsPath, "file", "", "standards CSV/XLSX (default from config)")
	rootCmd.AddCommand(standardsCmd)
}
