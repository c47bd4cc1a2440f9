package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/model"
)

var (
	reviewLinkID   int64
	reviewStatus   string
	reviewNotes    string
	reviewReviewer string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record a reviewer verdict on a match link",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.VerificationStatus(reviewStatus)
		if !status.HumanAssigned() {
			return eris.Errorf("status must be verified or rejected, got %q", reviewStatus)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetLinkReview(ctx, reviewLinkID, status, reviewNotes, reviewReviewer); err != nil {
			return eris.Wrapf(err, "review link %d", reviewLinkID)
		}

		zap.L().Info("review recorded",
			zap.Int64("link_id", reviewLinkID),
			zap.String("status", reviewStatus),
			zap.String("reviewer", reviewReviewer),
		)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show link counts by verification status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountLinksByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "count links")
		}

		fields := make([]zap.Field, 0, len(counts))
		for status, n := range counts {
			fields = append(fields, zap.Int(string(status), n))
		}
		zap.L().Info("link status", fields...)
		return nil
	},
}

func init() {
	reviewCmd.Flags().Int64Var(&reviewLinkID, "link-id", 0, "match link ID (required)")
	reviewCmd.Flags().StringVar(&reviewStatus, "status", "", "verified or rejected (required)")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "reviewer notes")
	reviewCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "reviewer name")
	_ = reviewCmd.MarkFlagRequired("link-id")
	_ = reviewCmd.MarkFlagRequired("status")
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statusCmd)
}
