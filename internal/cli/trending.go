package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/marketscrape/internal/config"
	"github.com/law-makers/marketscrape/internal/output"
	"github.com/law-makers/marketscrape/internal/runctx"
	"github.com/law-makers/marketscrape/internal/ui"
)

// trendingFile is the fixed name of the trending snapshot
const trendingFile = "coingecko-trending"

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Save the trending coins snapshot from the JSON API",
	Long: `Fetches the trending endpoint, drops its NFT section and saves the
rest unchanged. Failed requests are retried with a growing pause.`,
	Example: `  marketscrape trending
  marketscrape trending --attempts 5 --backoff 3s -o ./snapshots`,
	Args: cobra.NoArgs,
	RunE: runTrending,
}

func init() {
	rootCmd.AddCommand(trendingCmd)
	config.RegisterTrendingFlags(trendingCmd)
}

func runTrending(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	ctx := runctx.With(cmd.Context())

	snap, err := a.Trending().Fetch(ctx)
	if err != nil {
		return runctx.Wrap(ctx, err)
	}

	sink, err := a.Sink()
	if err != nil {
		return err
	}
	file, err := sink.WriteJSON(trendingFile, snap)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n%s\n", ui.Bold("Summary:"))
	ui.Field(w, "Trending coins", ui.Success(fmt.Sprintf("%d", snap.Coins())))
	ui.Field(w, "Categories", ui.Success(fmt.Sprintf("%d", snap.Categories())))
	ui.Field(w, "Saved", ui.Value(file.Path), ui.Info("("+output.HumanSize(file.Size)+")"))
	fmt.Fprintln(w)
	return nil
}
