package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	// Read before stop: stop cancels ctx whether or not a signal arrived.
	interrupted := ctx.Err() != nil
	stop()
	if err != nil {
		os.Exit(exitCode(os.Stderr, interrupted, err))
	}
}

func exitCode(w io.Writer, interrupted bool, err error) int {
	if interrupted || errors.Is(err, context.Canceled) {
		return 130
	}
	fmt.Fprintln(w, err)
	return 1
}
