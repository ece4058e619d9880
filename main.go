package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/o2cms/cfmigrate/cmd"
	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

const (
	exitFailure     = 1
	exitInterrupted = 130
	sentryFlushWait = 2 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// the first signal cancels the run so state is saved; a second one
	// falls through to the default handler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)

	err := rootCmd.ExecuteContext(ctx)

	errors.FlushSentry(sentryFlushWait)
	_ = logger.Global().Close()

	switch {
	case err == nil:
		return 0
	case errors.IsCategory(err, errors.CategoryCancellation):
		fmt.Fprintln(os.Stderr, "interrupted:", err)
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFailure
	}
}
