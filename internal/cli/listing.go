package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/marketscrape/internal/config"
	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/runctx"
)

var listingCmd = &cobra.Command{
	Use:   "listing [url]",
	Short: "Extract a paginated table page by page",
	Long: `Walks a paginated listing from the start page until a page without rows,
the max page, or too many consecutive failed pages.

Every page is retried locally before it counts as a failure. The browser
session is replaced every --recycle-interval pages and after every failed
page. With --shards the page range is split between concurrent sessions.`,
	Example: `  # First 10 pages of the coin table
  marketscrape listing --max-page 10

  # Four concurrent sessions, CSV output
  marketscrape listing --max-page 200 --shards 4 --format csv

  # Custom schema and logo download
  marketscrape listing --schema ./tokens.yaml --fetch-images`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListing,
}

func init() {
	rootCmd.AddCommand(listingCmd)
	config.RegisterPaginateFlags(listingCmd)
	config.RegisterExtractFlags(listingCmd)
}

func runListing(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	schema, err := loadSchema(a.Config, "listing", args)
	if err != nil {
		return err
	}
	if schema.PageParam == "" {
		log.Warn().Str("schema", schema.Name).Msg("Schema has no page parameter, every page loads the same URL")
	}

	run := runctx.New()
	ctx := runctx.WithRun(cmd.Context(), run)
	opts := a.Config.PageOptions()

	log.Info().
		Str("run_id", run.ID).
		Str("url", schema.URL).
		Int("start_page", opts.StartPage).
		Int("max_page", opts.MaxPage).
		Int("shards", a.Config.Paginate.Shards).
		Msg("Starting listing extraction")

	bar := newBar(a.Config, opts.MaxPage-opts.StartPage+1, "pages")
	res, runErr := engine.RunShards(ctx, a.Browser, extract.NewAssembler(schema), opts, a.Config.Paginate.Shards,
		func(p *engine.Paginator) {
			p.WithMetrics(a.Metrics).OnPage(func(ev engine.PageEvent) {
				if ev.State == engine.StateSuccess {
					bar.Add(1)
				}
			})
		})
	bar.Finish()

	return finish(ctx, cmd.OutOrStdout(), a, schema, res, runErr)
}
