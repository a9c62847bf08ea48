// Package main provides the corpusnorm command-line tool for validating and
// normalizing multi-source press-release corpora.
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

// Exit codes.
const (
	exitOK       = 0
	exitFindings = 1
	exitSetup    = 2
)

// errFatalFindings marks a run that completed but reported fatal findings.
var errFatalFindings = errors.New("fatal findings reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFatalFindings):
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFindings
	default:
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitSetup
	}
}
