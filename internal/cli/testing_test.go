package cli_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"bgio/internal/cli"
)

// Test harness: a temp dir for files and the log, stderr logging off.
type CLI struct {
	t   *testing.T
	Dir string
}

func NewCLI(t *testing.T) *CLI {
	t.Helper()
	return &CLI{t: t, Dir: t.TempDir()}
}

func (r *CLI) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

func (r *CLI) RunWithInput(in io.Reader, args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer
	full := append([]string{"--quiet", "--log-file", r.Path("bg_log_file.txt")}, args...)
	code := cli.Run(context.Background(), in, &outBuf, &errBuf, full)
	return outBuf.String(), errBuf.String(), code
}

func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput(strings.NewReader(""), args...)
}

func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()
	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("%v exited %d\nstderr: %s", args, code, stderr)
	}
	return stdout
}

func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()
	_, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("%v succeeded, wanted failure", args)
	}
	return stderr
}
