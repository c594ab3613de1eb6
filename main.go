// bgio drives the file I/O layer from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bgio/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	os.Exit(code)
}
