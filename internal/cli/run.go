package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/law-makers/marketscrape/internal/app"
	"github.com/law-makers/marketscrape/internal/assets"
	"github.com/law-makers/marketscrape/internal/config"
	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/output"
	"github.com/law-makers/marketscrape/internal/runctx"
	"github.com/law-makers/marketscrape/internal/ui"
	urlutil "github.com/law-makers/marketscrape/internal/utils/url"
)

func appFrom(cmd *cobra.Command) (*app.Application, error) {
	a := GetAppFromCmd(cmd)
	if a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

// loadSchema returns the configured schema file, or the named preset. A URL
// argument replaces the schema's URL.
func loadSchema(cfg *config.Config, preset string, args []string) (*extract.Schema, error) {
	var (
		schema *extract.Schema
		err    error
	)
	if cfg.Schema != "" {
		schema, err = extract.LoadSchema(cfg.Schema)
	} else {
		schema, err = extract.Preset(preset)
	}
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		if err := urlutil.ValidateURL(args[0]); err != nil {
			return nil, err
		}
		schema.URL = args[0]
	}
	if schema.URL == "" {
		return nil, fmt.Errorf("schema %q has no url; pass one as an argument", schema.Name)
	}
	return schema, nil
}

// newBar returns a progress bar on stderr, hidden when logs are JSON or
// only errors are shown
func newBar(cfg *config.Config, total int, description string) *progressbar.ProgressBar {
	visible := !cfg.Log.JSON && cfg.Log.Level != "error"
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// finish persists what a run produced. Records are written for every run
// that produced any, whatever its state; images follow when requested. The
// returned error is the run's fatal error, if any.
func finish(ctx context.Context, w io.Writer, a *app.Application, schema *extract.Schema, res *engine.Result, runErr error) error {
	run := runctx.From(ctx)

	if runErr != nil && len(res.Records) == 0 {
		return runctx.Wrap(ctx, runErr)
	}

	sink, err := a.Sink()
	if err != nil {
		return runctx.Wrap(ctx, err)
	}
	file, err := sink.WriteRecords(output.Name(schema.OutputPrefix(), run.StartTime), schema.FieldNames(), res.Records)
	if err != nil {
		return runctx.Wrap(ctx, err)
	}

	var images []*assets.Result
	if a.Config.Output.FetchImages && schema.ImageField != "" && len(res.Records) > 0 {
		// images are still fetched after an interrupt, bounded by the timeout
		imgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		jobs := assets.Jobs(res.Records, schema.Key, schema.ImageField, schema.URL)
		images = a.Assets().FetchAll(imgCtx, jobs)
		cancel()
	}

	printSummary(w, schema, res, file, images, filepath.Join(a.Config.Output.Dir, "images"))

	if res.State == engine.StateAborted {
		log.Warn().
			Err(res.Err).
			Str("run_id", run.ID).
			Int("rows", len(res.Records)).
			Msg("Run aborted, partial results saved")
	}
	return runctx.Wrap(ctx, runErr)
}

func printSummary(w io.Writer, schema *extract.Schema, res *engine.Result, file *output.File, images []*assets.Result, imageDir string) {
	state := ui.Success(res.State.String())
	if res.State == engine.StateAborted {
		state = ui.Error(res.State.String())
	}

	fmt.Fprintf(w, "\n%s\n", ui.Bold("Summary:"))
	ui.Field(w, "Schema", ui.Value(schema.Name))
	ui.Field(w, "State", state)
	ui.Field(w, "Records", ui.Value(fmt.Sprintf("%d", len(res.Records))))
	ui.Field(w, "Work", fmt.Sprintf("%d pages, %d sessions", res.Pages, res.Sessions))
	ui.Field(w, "Elapsed", res.Elapsed.Round(time.Millisecond))
	switch {
	case errors.Is(res.Err, context.Canceled):
		ui.Field(w, "Stopped by", ui.Info("interrupt"))
	case res.Err != nil:
		ui.Field(w, "Stopped by", ui.Error(res.Err.Error()))
	}
	ui.Field(w, "Saved", ui.Value(file.Path), ui.Info("("+output.HumanSize(file.Size)+")"))

	if len(images) > 0 {
		ok := 0
		for _, r := range images {
			if r.Err == nil {
				ok++
			}
		}
		ui.Field(w, "Images", fmt.Sprintf("%s of %d into %s", ui.Success(fmt.Sprintf("%d", ok)), len(images), imageDir))
	}
	fmt.Fprintln(w)
}
