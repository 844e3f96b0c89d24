package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.NewApp().Run(ctx, os.Args[1:], version)
	cancel()
	os.Exit(code)
}
