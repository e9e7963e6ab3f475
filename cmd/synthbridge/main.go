package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"synthbridge/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(1)
	}
}

// formatError prefixes classified errors with their kind so scripts can
// match on a stable token.
func formatError(err error) string {
	kind := services.Kind(err)
	if kind == "" || kind == "unknown" {
		return err.Error()
	}
	return fmt.Sprintf("error [%s]: %v", kind, err)
}
