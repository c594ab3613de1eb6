package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	c "bgio/internal"
	"bgio/internal/fileio"
	"bgio/internal/util"

	"github.com/cespare/xxhash"
	flag "github.com/spf13/pflag"
)

type benchResult struct {
	mode    string
	path    string
	issue   time.Duration
	total   time.Duration
	pending int
	bytes   int64
}

func benchCmd() *Command {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	workers := fs.IntP("workers", "w", 0, "Async and sync writer pairs (default from config)")
	iterations := fs.IntP("iterations", "i", 0, "Writes per file (default from config)")
	chunk := fs.Int("chunk-kib", 0, "Size of each write in KiB (default from config)")
	dir := fs.StringP("dir", "d", "", "Directory for bench files (default from config)")
	keep := fs.Bool("keep", false, "Keep bench files")

	return &Command{
		Flags: fs,
		Usage: "bench [flags]",
		Short: "Compare async issue/wait writes with blocking writes",
		Long: "Each worker pair writes one file through IssueWrite+Wait and one through\n" +
			"the sequential Write call, reports time spent issuing vs. completing,\n" +
			"then verifies both files by xxhash.",
		Exec: func(ctx context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 0, 0); err != nil { return err }

			bc := env.Cfg.Bench
			if *workers > 0 { bc.Workers = *workers }
			if *iterations > 0 { bc.Iterations = *iterations }
			if *chunk > 0 { bc.ChunkKiB = *chunk }
			if *dir != "" { bc.Dir = *dir }
			if *keep { bc.Keep = true }

			size := c.PageAlign(bc.ChunkKiB * c.KiB)
			if uint64(size) > c.MAX_TRANSFER {
				return fmt.Errorf("%w: chunk of %d bytes", fileio.ErrTooLarge, size)
			}

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				results []benchResult
				errs    []error
			)
			report := func(r benchResult, err error) {
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				results = append(results, r)
			}

			stamp := time.Now().UnixNano()
			for w := range bc.Workers {
				for _, async := range []bool{true, false} {
					mode := "sync"
					if async { mode = "async" }
					path := filepath.Join(bc.Dir, fmt.Sprintf("bench_%s_%d_%d", mode, stamp, w))

					wg.Add(1)
					go func() {
						defer wg.Done()
						report(benchFile(ctx, env, path, async, size, bc.Iterations, uint64(w), bc.Keep))
					}()
				}
			}
			wg.Wait()

			for _, r := range results {
				o.Printf("%-5s issue ms: %10.3f  io ms: %10.3f  MiB/s: %8.1f  pending: %d/%d\n",
					r.mode, ms(r.issue), ms(r.total),
					float64(r.bytes)/float64(c.MiB)/r.total.Seconds(), r.pending, bc.Iterations)
			}
			if err := errors.Join(errs...); err != nil { return err }
			o.Println(fmt.Sprintf("%d file(s) verified, backend %s", len(results), env.Sys.Backend()))
			return nil
		},
	}
}

func benchFile(ctx context.Context, env *Env, path string, async bool, size, iterations int, seed uint64, keep bool) (benchResult, error) {
	r := benchResult{mode: "sync", path: path, bytes: int64(size) * int64(iterations)}
	if async { r.mode = "async" }
	log := env.Log.With("bench", r.mode, "path", path)

	h, err := env.Sys.Create(path, fileio.ReadWrite, fileio.ShareNone)
	if err != nil { return r, err }
	if !keep { defer env.Sys.Delete(path) }
	defer h.Close()

	buf := make([]byte, size)
	util.FillPattern(buf, seed)
	want := xxhash.New()

	start := time.Now()
	for i := range iterations {
		if err := ctx.Err(); err != nil { return r, err }
		off := int64(i) * int64(size)

		if !async {
			if err := h.SetPosition(off); err != nil { return r, err }
			if err := h.Write(buf); err != nil { return r, err }
			want.Write(buf)
			continue
		}

		s := time.Now()
		res, tok, err := h.IssueWrite(buf, off)
		r.issue += time.Since(s)
		if res == fileio.Error { return r, err }
		if res == fileio.Pending { r.pending++ }
		if err := h.Wait(&tok); err != nil { return r, err }
		want.Write(buf)
	}
	r.total = time.Since(start)
	if !async { r.issue = r.total }

	if err := h.Sync(); err != nil { return r, err }

	data, err := env.Sys.ReadEntireFile(path)
	if err != nil { return r, err }
	if got := xxhash.Sum64(data); got != want.Sum64() {
		log.Error("Bench file corrupt", "want", want.Sum64(), "got", got)
		return r, fmt.Errorf("%s: xxhash %016x, want %016x", path, got, want.Sum64())
	}
	log.Info("Bench file verified", "bytes", len(data), "issue", r.issue, "total", r.total)
	return r, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
