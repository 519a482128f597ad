package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run on interrupt; commands still save partial results
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("Interrupt received, saving partial results...")
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		cli.PrintError(err)
		cancel()
		os.Exit(1)
	}
}
