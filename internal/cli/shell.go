package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"bgio/internal/fileio"
	"bgio/internal/util"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

const shellHelp = `open <path> [rw]        open existing file (read-only unless rw)
create <path>           create new file read-write
close                   close the current handle
pos                     print the cached position
seek <off> [end]        move the position from begin (or end)
read <n>                sequential read of n bytes
write <text>            sequential write
iread <off> <n>         issue a read, prints a token id
iwrite <off> <text>     issue a write, prints a token id
poll <id>               poll a token
wait <id>               wait for a token
tokens                  list live tokens
size                    size of the open file
sync                    flush the open file
help                    this text
quit                    leave`

type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

type linerPrompter struct{ *liner.State }

type scanPrompter struct{ sc *bufio.Scanner }

func (s scanPrompter) Prompt(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil { return "", err }
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func (scanPrompter) AppendHistory(string) {}
func (scanPrompter) Close() error         { return nil }

// Line editing only when stdin is a terminal; scripts and tests are read
// line by line.
func newPrompter(in io.Reader) prompter {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		st := liner.NewLiner()
		st.SetCtrlCAborts(true)
		return linerPrompter{st}
	}
	return scanPrompter{bufio.NewScanner(in)}
}

type shellToken struct {
	tok  fileio.Token
	kind string
	off  int64
	buf  []byte
}

type shell struct {
	o      *IO
	env    *Env
	h      *fileio.Handle
	tokens map[int]*shellToken
	nextID int
}

func shellCmd() *Command {
	return &Command{
		Usage: "shell",
		Short: "Interactive session over one handle",
		Long:  "Drive a single handle by hand: issue, poll and wait on tokens.\n\n" + shellHelp,
		Exec: func(ctx context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 0, 0); err != nil { return err }

			p := newPrompter(env.In)
			defer p.Close()

			sh := &shell{o: o, env: env, tokens: make(map[int]*shellToken)}
			defer sh.closeHandle()

			for {
				if err := ctx.Err(); err != nil { return err }
				line, err := p.Prompt("bgio> ")
				if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) { return nil }
				if err != nil { return err }

				line = strings.TrimSpace(line)
				if line == "" { continue }
				p.AppendHistory(line)

				quit, err := sh.exec(line)
				if err != nil { o.Println("error:", err) }
				if quit { return nil }
			}
		},
	}
}

func (sh *shell) exec(line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		sh.o.Println(shellHelp)
		return false, nil
	case "open", "create":
		return false, sh.open(cmd == "create", args)
	}

	if !sh.h.IsValid() && cmd != "tokens" && cmd != "close" {
		return false, fileio.ErrInvalidHandle
	}

	switch cmd {
	case "close":
		return false, sh.closeHandle()
	case "pos":
		sh.o.Println(sh.h.Position())
	case "seek":
		if len(args) < 1 { return false, ErrUsage }
		off, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil { return false, err }
		whence := fileio.WhenceBegin
		if len(args) > 1 && args[1] == "end" { whence = fileio.WhenceEnd }
		p, err := sh.h.Seek(off, whence)
		if err != nil { return false, err }
		sh.o.Println(p)
	case "read":
		n, err := sh.intArg(args, 0)
		if err != nil { return false, err }
		buf := make([]byte, n)
		if err := sh.h.Read(buf); err != nil { return false, err }
		sh.o.Printf("%s", util.HexDump(buf, 0))
	case "write":
		if err := sh.h.Write([]byte(rest)); err != nil { return false, err }
		sh.o.Println("wrote", len(rest), "pos", sh.h.Position())
	case "iread":
		off, err := sh.intArg(args, 0)
		if err != nil { return false, err }
		n, err := sh.intArg(args, 1)
		if err != nil { return false, err }
		buf := make([]byte, n)
		res, tok, err := sh.h.IssueRead(buf, int64(off))
		return false, sh.track(res, tok, err, "read", int64(off), buf)
	case "iwrite":
		off, err := sh.intArg(args, 0)
		if err != nil { return false, err }
		_, text, _ := strings.Cut(rest, " ")
		buf := []byte(text)
		res, tok, err := sh.h.IssueWrite(buf, int64(off))
		return false, sh.track(res, tok, err, "write", int64(off), buf)
	case "poll", "wait":
		id, err := sh.intArg(args, 0)
		if err != nil { return false, err }
		st, ok := sh.tokens[id]
		if !ok { return false, fmt.Errorf("no token %d", id) }

		var res fileio.Result
		if cmd == "poll" {
			res, err = sh.h.Poll(&st.tok)
		} else {
			res = fileio.Done
			if err = sh.h.Wait(&st.tok); err != nil { res = fileio.Error }
		}
		if res == fileio.Pending {
			sh.o.Println("token", id, res)
			return false, nil
		}
		delete(sh.tokens, id)
		sh.report(id, res, st)
		return false, err
	case "tokens":
		ids := make([]int, 0, len(sh.tokens))
		for id := range sh.tokens { ids = append(ids, id) }
		slices.Sort(ids)
		for _, id := range ids {
			st := sh.tokens[id]
			sh.o.Printf("%d\t%s\toff=%d\tn=%d\n", id, st.kind, st.off, len(st.buf))
		}
	case "size":
		n, err := sh.h.Size()
		if err != nil { return false, err }
		sh.o.Println(n)
	case "sync":
		return false, sh.h.Sync()
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (sh *shell) open(create bool, args []string) error {
	if len(args) < 1 { return ErrUsage }
	if err := sh.closeHandle(); err != nil { return err }

	var (
		h   *fileio.Handle
		err error
	)
	if create {
		h, err = sh.env.Sys.Create(args[0], fileio.ReadWrite, fileio.ShareRead)
	} else {
		access := fileio.ReadOnly
		if len(args) > 1 && args[1] == "rw" { access = fileio.ReadWrite }
		h, err = sh.env.Sys.Open(args[0], access, fileio.ShareRead)
	}
	if err != nil { return err }
	sh.h = h
	sh.o.Println("opened", h.Path())
	return nil
}

// Live tokens are waited out first so no buffer is still owned by the kernel
// when the descriptor goes away.
func (sh *shell) closeHandle() error {
	if !sh.h.IsValid() { return nil }
	ids := make([]int, 0, len(sh.tokens))
	for id := range sh.tokens { ids = append(ids, id) }
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		st := sh.tokens[id]
		res := fileio.Done
		if err := sh.h.Wait(&st.tok); err != nil {
			res = fileio.Error
			errs = append(errs, fmt.Errorf("token %d: %w", id, err))
		}
		delete(sh.tokens, id)
		sh.report(id, res, st)
	}
	errs = append(errs, sh.h.Close())
	sh.h = nil
	return errors.Join(errs...)
}

// Done at issue still leaves a token to resolve, so both results are tracked.
func (sh *shell) track(res fileio.Result, tok fileio.Token, err error, kind string, off int64, buf []byte) error {
	if res == fileio.Error { return err }
	sh.nextID++
	sh.tokens[sh.nextID] = &shellToken{tok: tok, kind: kind, off: off, buf: buf}
	sh.o.Println("token", sh.nextID, res)
	return nil
}

func (sh *shell) report(id int, res fileio.Result, st *shellToken) {
	sh.o.Println("token", id, res, "n", st.tok.N())
	if st.kind == "read" && res == fileio.Done {
		sh.o.Printf("%s", util.HexDump(st.buf[:st.tok.N()], 0))
	}
}

func (sh *shell) intArg(args []string, i int) (int, error) {
	if len(args) <= i { return 0, ErrUsage }
	n, err := strconv.ParseInt(args[i], 0, 0)
	if err != nil { return 0, err }
	if n < 0 { return 0, fmt.Errorf("%d: %w", n, fileio.ErrNegativeOffset) }
	return int(n), nil
}
