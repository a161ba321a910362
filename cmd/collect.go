package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/analysis"
	"github.com/sells-group/competitor-intel/internal/model"
)

var collectOpts struct {
	location       string
	seed           string
	category       string
	maxCompetitors int
	tier           string
	forceRefresh   bool
	quota          int
	noSample       bool
	lat            float64
	lng            float64
}

// collectOutput is the JSON document printed by collect.
type collectOutput struct {
	Result  *model.CollectionResult         `json:"result"`
	Samples map[string][]model.ScoredReview `json:"samples,omitempty"`
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Discover competitors and collect a review sample for each",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tier, err := model.ParseTier(collectOpts.tier)
		if err != nil {
			return err
		}

		env, err := initService(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		maxCompetitors := collectOpts.maxCompetitors
		if maxCompetitors <= 0 {
			maxCompetitors = cfg.Discovery.DefaultMaxResults
		}

		lat, lng := searchCentre(cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng"), collectOpts.lat, collectOpts.lng)

		result, err := env.Service.Collect(ctx, analysis.Request{
			Location:       collectOpts.location,
			SeedName:       collectOpts.seed,
			Category:       collectOpts.category,
			MaxCompetitors: maxCompetitors,
			Tier:           tier,
			ForceRefresh:   collectOpts.forceRefresh,
			Latitude:       lat,
			Longitude:      lng,
		})
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		out := collectOutput{Result: result}
		if !collectOpts.noSample {
			quota := collectOpts.quota
			if quota <= 0 {
				quota = cfg.Sampler.Quota
			}
			out.Samples = env.Service.Sample(result, quota)
		}

		zap.L().Info("collect finished",
			zap.String("run_id", result.RunID),
			zap.Int("competitors", result.Timing.CompetitorCount),
			zap.Int("reviews", result.Timing.ReviewCount),
		)
		return writeJSON(os.Stdout, out)
	},
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&collectOpts.location, "location", "", "location to search around, e.g. \"Woonsocket, RI\"")
	f.StringVar(&collectOpts.seed, "seed", "", "name of the target business, excluded from competitors")
	f.StringVar(&collectOpts.category, "category", "", "business category, e.g. pizza")
	f.IntVar(&collectOpts.maxCompetitors, "max-competitors", 0, "max competitors to analyze (0 = discovery.default_max_results)")
	f.StringVar(&collectOpts.tier, "tier", string(model.TierFree), "page-size tier (free, premium)")
	f.BoolVar(&collectOpts.forceRefresh, "force-refresh", false, "bypass the competitor cache and overwrite it")
	f.IntVar(&collectOpts.quota, "quota", 0, "sample size per competitor (0 = sampler.quota)")
	f.BoolVar(&collectOpts.noSample, "no-sample", false, "print the full review pools without sampling")
	f.Float64Var(&collectOpts.lat, "lat", 0, "latitude of the target business; with --lng, competitors carry distance_km")
	f.Float64Var(&collectOpts.lng, "lng", 0, "longitude of the target business")
	_ = collectCmd.MarkFlagRequired("location")
	_ = collectCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(collectCmd)
}

// searchCentre returns the distance centre, or nils unless both coordinates
// were given.
func searchCentre(latSet, lngSet bool, lat, lng float64) (*float64, *float64) {
	if !latSet || !lngSet {
		return nil, nil
	}
	return &lat, &lng
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write json")
}
