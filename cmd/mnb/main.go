package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/berkgaut/mnb/internal/cli"
	"github.com/go-errors/errors"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := run(ctx)
	os.Exit(code)
}

// run wraps cli.Run with the same panic-to-stack-trace recovery
// lazydocker's main.go applies around app.Run, so a panic on this
// goroutine is printed to stderr with its stack trace and the process
// exits with code 1. Container teardown does not depend on it: the
// executor's deferred stop-and-remove runs while the panic unwinds.
func run(ctx context.Context) (code int) {
	defer func() {
		if r := recover(); r != nil {
			stackErr := errors.Wrap(fmt.Errorf("panic: %v", r), 1)
			fmt.Fprintln(os.Stderr, stackErr.ErrorStack())
			code = 1
		}
	}()

	return cli.Run(ctx, cli.BuildInfo{Version: version, Commit: commit, Date: date})
}
