package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/store"
)

// manualReviewHeader is the column contract consumed by the review
// spreadsheet; reorder or rename only in lockstep with the reviewers.
var manualReviewHeader = []string{
	"runner_id",
	"first_name",
	"last_name",
	"swimcloud_url",
	"match_score",
	"verification_status",
	"match_explanation",
}

// ExportManualReview writes every link awaiting human review as CSV.
// Returns the number of rows written.
func (p *Pipeline) ExportManualReview(ctx context.Context, w io.Writer) (int, error) {
	details, err := p.store.ListLinks(ctx, store.LinkFilter{
		Status: model.StatusManualReview,
	})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list manual review links")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(manualReviewHeader); err != nil {
		return 0, eris.Wrap(err, "pipeline: write export header")
	}
	for _, d := range details {
		row := []string{
			strconv.FormatInt(d.Source.ID, 10),
			d.Source.FirstName,
			d.Source.LastName,
			d.Candidate.SourceURL,
			strconv.Itoa(d.Link.Score),
			string(d.Link.Status),
			d.Link.Rationale,
		}
		if err := cw.Write(row); err != nil {
			return 0, eris.Wrap(err, "pipeline: write export row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "pipeline: flush export")
	}

	zap.L().Info("pipeline: manual review export written", zap.Int("rows", len(details)))
	return len(details), nil
}
