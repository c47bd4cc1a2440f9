package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/classify"
	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/store"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

var (
	classifyEvent    string
	classifyGender   string
	classifyAgeGroup string
	classifyTime     string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify times against the benchmark ladders",
	Long:  "With --time, classifies a single time. Without it, classifies every verified link's performance time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if classifyTime != "" {
			return classifyOne(ctx, st)
		}
		return classifyLinks(ctx, st)
	},
}

func classifyOne(ctx context.Context, st store.Store) error {
	secs, err := timeparse.ParseSeconds(classifyTime,
		timeparse.SideFromString(cfg.Standards.DualTimeSide))
	if err != nil {
		return eris.Wrapf(err, "parse time %q", classifyTime)
	}

	gender := model.Gender(classifyGender)
	switch gender {
	case model.GenderMale, model.GenderFemale:
	default:
		return eris.Errorf("gender must be M or F, got %q", classifyGender)
	}
	if classifyEvent == "" {
		return eris.New("--event is required with --time")
	}

	ladder, err := st.GetBenchmarks(ctx, gender, classifyAgeGroup, classifyEvent)
	if err != nil {
		return eris.Wrap(err, "get benchmarks")
	}
	if len(ladder) == 0 {
		return eris.Errorf("no standards for %s %s %s (run `talentid standards` first?)",
			classifyGender, classifyAgeGroup, classifyEvent)
	}

	result, ok := classify.Classify(ladder, secs)
	if !ok {
		return printJSON(map[string]any{
			"event_key":    classifyEvent,
			"athlete_time": secs,
			"tier":         nil,
		})
	}
	return printJSON(result)
}

// classifyLinks runs every human- or auto-verified link's source time through
// its benchmark ladder. Classification is derived on demand, never stored.
func classifyLinks(ctx context.Context, st store.Store) error {
	var results []model.ClassificationResult
	unclassified := 0

	for _, status := range []model.VerificationStatus{model.StatusVerified, model.StatusAutoVerified} {
		links, err := st.ListLinks(ctx, store.LinkFilter{Status: status, EventKey: classifyEvent})
		if err != nil {
			return eris.Wrapf(err, "list %s links", status)
		}
		for _, d := range links {
			ladder, err := st.GetBenchmarks(ctx, d.Source.Gender, classifyAgeGroup, d.Source.EventKey)
			if err != nil {
				return eris.Wrap(err, "get benchmarks")
			}
			result, ok := classify.Classify(ladder, d.Source.PerformanceTime)
			if !ok {
				unclassified++
				continue
			}
			result.LinkID = d.Link.ID
			result.SourceID = d.Source.ID
			results = append(results, *result)
		}
	}

	zap.L().Info("classification complete",
		zap.Int("classified", len(results)),
		zap.Int("unclassified", unclassified),
	)
	if results == nil {
		results = []model.ClassificationResult{}
	}
	return printJSON(results)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	classifyCmd.Flags().StringVar(&classifyEvent, "event", "", "event key, e.g. 5000m")
	classifyCmd.Flags().StringVar(&classifyGender, "gender", "", "M or F (required with --time)")
	classifyCmd.Flags().StringVar(&classifyAgeGroup, "age-group", "Senior", "Junior or Senior")
	classifyCmd.Flags().StringVar(&classifyTime, "time", "", "time to classify, e.g. 14:02.33")
	rootCmd.AddCommand(classifyCmd)
}
