package cli

import (
	"context"
	"io"
	"strings"

	"bgio/internal/config"
	"bgio/internal/fileio"
	"bgio/internal/logsink"

	flag "github.com/spf13/pflag"
)

func commands() []*Command {
	return []*Command{
		benchCmd(),
		catCmd(),
		viewCmd(),
		sizeCmd(),
		rmCmd(),
		cpCmd(),
		lsCmd(),
		shellCmd(),
	}
}

type globalFlags struct {
	config  string
	backend string
	logFile string
	verbose bool
	quiet   bool
	help    bool
}

func globalFlagSet(g *globalFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("bgio", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&g.config, "config", "c", "", "Config file (.yaml/.yml, otherwise JSONC)")
	fs.StringVar(&g.backend, "backend", "", "I/O backend: auto, uring, overlapped, sync")
	fs.StringVar(&g.logFile, "log-file", "", "Log file path")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging")
	fs.BoolVarP(&g.quiet, "quiet", "q", false, "Do not log to stderr")
	fs.BoolVarP(&g.help, "help", "h", false, "Show help")
	return fs
}

// Run is the main entry point. args excludes the program name. Returns the
// exit code.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, args []string) int {
	o := NewIO(out, errOut)

	var g globalFlags
	fs := globalFlagSet(&g)
	if err := fs.Parse(args); err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		printUsage(NewIO(errOut, errOut), fs)
		return 1
	}

	rest := fs.Args()
	if g.help || len(rest) == 0 {
		printUsage(o, fs)
		return 0
	}

	var cmd *Command
	for _, c := range commands() {
		if c.Name() == rest[0] { cmd = c }
	}
	if cmd == nil {
		o.ErrPrintln("error: unknown command:", rest[0])
		printUsage(NewIO(errOut, errOut), fs)
		return 1
	}

	cfg, err := config.Load(g.config)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	if g.backend != "" { cfg.Backend = g.backend }
	if g.logFile != "" { cfg.Log.Path = g.logFile }
	if g.verbose { cfg.Log.Level = "debug" }
	if g.quiet { cfg.Log.Stderr = false }
	if err := cfg.Validate(); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	log, err := logsink.Init(cfg.LogSink())
	if err != nil {
		o.ErrPrintln("error: log sink:", err)
		return 1
	}
	defer logsink.Teardown()

	sys, err := fileio.New(cfg.FileIO(), log)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	defer sys.Close()

	log.Debug("Run", "src", "CLI", "cmd", cmd.Name(), "backend", sys.Backend())
	env := &Env{Sys: sys, Cfg: cfg, Log: log.With("src", "CLI"), In: in}
	return cmd.Run(ctx, o, env, rest[1:])
}

func printUsage(o *IO, fs *flag.FlagSet) {
	o.Println("bgio - file I/O over io_uring, overlapped or blocking backends")
	o.Println()
	o.Println("Usage: bgio [flags] <command> [args]")
	o.Println()
	o.Println("Commands:")
	for _, c := range commands() { o.Println(c.HelpLine()) }
	o.Println()
	o.Println("Global flags:")

	var buf strings.Builder
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	o.Printf("%s", buf.String())
}
