// Ellie CLI - runs and inspects assembled ellie programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ellie/manifest"
)

var log = commonlog.GetLogger("ellie")

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// exitError carries a process exit code through the command handlers.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// cli holds what every subcommand needs.
type cli struct {
	stdout, stderr io.Writer
	m              *manifest.Manifest

	// fromFile is set when m was read from an ellie.toml; only then does
	// [vm] architecture constrain the artifacts.
	fromFile bool

	format string
	verify bool
	trace  bool
	call   string
	breaks []string
}

func main() {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ellie", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", -1, "Log verbosity; overrides [log] verbosity in ellie.toml")
	logFile := fs.String("log", "", "Log file; overrides [log] file in ellie.toml")
	format := fs.String("format", "", "debug-info format: text or yaml")
	verify := fs.Bool("verify", false, "Refuse artifacts that differ from .ellie/lock.toml")
	trace := fs.Bool("trace", false, "Print every executed instruction")
	call := fs.String("call", "", "run: call the function with this hash instead of main")
	var breaks stringList
	fs.Var(&breaks, "break", "debug: break at this function (repeatable)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ellie [options] <command> [artifact] [args...]\n\n")
		fmt.Fprintf(stderr, "Runs and inspects assembled ellie programs (.eia CBOR artifacts or .eib binaries).\n")
		fmt.Fprintf(stderr, "The artifact defaults to [project] entry in the nearest ellie.toml.\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  run          Run main, or -call a function with int args\n")
		fmt.Fprintf(stderr, "  dis          Print the annotated disassembly\n")
		fmt.Fprintf(stderr, "  debug-info   Print the debug side table\n")
		fmt.Fprintf(stderr, "  debug        Run under the debugger, stopping at -break functions\n")
		fmt.Fprintf(stderr, "  lock         Pin the artifact digest in .ellie/lock.toml\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return 1
	}
	fromFile := m != nil
	if m == nil {
		m = manifest.Default()
		m.Dir, _ = os.Getwd()
	}
	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	if *logFile != "" {
		m.Log.File = *logFile
	}
	configureLog(m)

	c := &cli{
		stdout:   stdout,
		stderr:   stderr,
		m:        m,
		fromFile: fromFile,
		format:   *format,
		verify:   *verify,
		trace:    *trace,
		call:     *call,
		breaks:   breaks,
	}
	if c.format == "" {
		c.format = m.Debug.Format
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "run":
		err = c.handleRun(ctx, rest)
	case "dis":
		err = c.handleDis(rest)
	case "debug-info":
		err = c.handleDebugInfo(rest)
	case "debug":
		err = c.handleDebug(ctx, rest)
	case "lock":
		err = c.handleLock(rest)
	default:
		fmt.Fprintf(stderr, "%s unknown command %q\n", red("error:"), cmd)
		fs.Usage()
		return 2
	}

	var exit exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return 1
	}
}

func configureLog(m *manifest.Manifest) {
	if path := m.LogFilePath(); path != "" {
		commonlog.Configure(m.Log.Verbosity, &path)
		return
	}
	commonlog.Configure(m.Log.Verbosity, nil)
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}
