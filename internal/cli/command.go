package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"bgio/internal/config"
	"bgio/internal/fileio"

	flag "github.com/spf13/pflag"
)

var ErrUsage = errors.New("usage")

// What every command runs against.
type Env struct {
	Sys *fileio.System
	Cfg config.Config
	Log *slog.Logger
	In  io.Reader
}

// Command defines a CLI command with unified help generation.
type Command struct {
	Flags *flag.FlagSet

	// Usage is shown after "bgio" in help. First word is the command name.
	Usage string
	Short string
	Long  string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, env *Env, args []string) error
}

func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-28s %s", c.Usage, c.Short)
}

func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: bgio", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" { desc = c.Short }
	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
func (c *Command) Run(ctx context.Context, o *IO, env *Env, args []string) int {
	if c.Flags == nil { c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError) }
	c.Flags.SetOutput(io.Discard)

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)
		return 1
	}

	if err := c.Exec(ctx, o, env, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		if errors.Is(err, ErrUsage) {
			o.ErrPrintln()
			c.PrintHelp(o)
		}
		return 1
	}
	return 0
}

func wantArgs(args []string, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("%w: got %d argument(s)", ErrUsage, len(args))
	}
	return nil
}
