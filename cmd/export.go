package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export links awaiting manual review as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close()
			out = f
		}

		n, err := p.ExportManualReview(ctx, out)
		if err != nil {
			return err
		}
		if exportOut != "" {
			zap.L().Info("export written", zap.String("file", exportOut), zap.Int("rows", n))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
