// Package main implements the airflow-correlator command, which relays task
// lifecycle transitions to a Correlator backend as lineage events.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/correlator-io/correlator-airflow/internal/version"
	"github.com/spf13/pflag"
)

const commandName = "airflow-correlator"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usageText = `Usage: airflow-correlator [--version] [--help] <command> [flags]

Relay Airflow task lifecycle events to Correlator as OpenLineage events.

Commands:
  serve    Run the hook receiver that accepts task lifecycle calls
  emit     Emit a single task lifecycle event
  version  Print the version and exit
  help     Show this help and exit

Run 'airflow-correlator <command> --help' for command flags.
`

// errUsage marks command-line mistakes that exit with exitUsage.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }

	showVersion := fs.Bool("version", false, "print the version and exit")
	showHelp := fs.BoolP("help", "h", false, "show this help and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n\n", commandName, err)
		fmt.Fprint(stderr, usageText)
		return exitUsage
	}

	switch {
	case *showHelp:
		fmt.Fprint(stdout, usageText)
		return exitOK
	case *showVersion:
		printVersion(stdout)
		return exitOK
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stdout, usageText)
		return exitOK
	}

	var err error
	switch rest[0] {
	case "version":
		printVersion(stdout)
		return exitOK
	case "help":
		fmt.Fprint(stdout, usageText)
		return exitOK
	case "serve":
		err = runServe(ctx, rest[1:], stdout, stderr)
	case "emit":
		err = runEmit(ctx, rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		fmt.Fprint(stderr, usageText)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%s: %v\n", commandName, err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "%s: %v\n", commandName, err)
		return exitError
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s, version %s\n", commandName, version.Version)
}
