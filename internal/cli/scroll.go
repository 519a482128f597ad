package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/marketscrape/internal/config"
	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/runctx"
)

var scrollCmd = &cobra.Command{
	Use:   "scroll [url]",
	Short: "Extract a virtualized table by scrolling it",
	Long: `Opens a virtualized list, focuses it and presses the down arrow
--steps times. Every --stride steps the visible rows are merged into one
record set keyed by the schema's identity field.

A failed session is retried from the top, keeping the rows seen so far.
Records are sorted by rank before they are saved.`,
	Example: `  # Prediction-market protocols
  marketscrape scroll

  # Stop once three snapshots add nothing new
  marketscrape scroll --stable 3 --steps 400`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScroll,
}

func init() {
	rootCmd.AddCommand(scrollCmd)
	config.RegisterScrollFlags(scrollCmd)
	config.RegisterExtractFlags(scrollCmd)
}

func runScroll(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	schema, err := loadSchema(a.Config, "protocols", args)
	if err != nil {
		return err
	}
	if schema.Key == "" {
		return fmt.Errorf("schema %q needs a key field to merge snapshots", schema.Name)
	}

	run := runctx.New()
	ctx := runctx.WithRun(cmd.Context(), run)
	opts := a.Config.SampleOptions()

	log.Info().
		Str("run_id", run.ID).
		Str("url", schema.URL).
		Int("steps", opts.ScrollSteps).
		Int("stride", opts.SnapshotStride).
		Msg("Starting scroll extraction")

	bar := newBar(a.Config, opts.ScrollSteps, "steps")
	sampler := engine.NewSampler(a.Browser, extract.NewAssembler(schema), opts).
		WithMetrics(a.Metrics).
		OnStep(func(ev engine.StepEvent) {
			bar.Describe(fmt.Sprintf("attempt %d, %d rows", ev.Attempt, ev.Total))
			bar.Set(ev.Step + 1)
		})

	res, runErr := sampler.Run(ctx)
	bar.Finish()

	return finish(ctx, cmd.OutOrStdout(), a, schema, res, runErr)
}
