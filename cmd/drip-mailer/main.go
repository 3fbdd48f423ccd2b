/*
Package main provides the CLI entry point for drip-mailer.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/drip-mailer/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
