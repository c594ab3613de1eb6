package fileio_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"
	"unsafe"

	c "bgio/internal"
	"bgio/internal/fileio"
	"bgio/internal/util"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cespare/xxhash"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		AddSource:  true,
	})))
	os.Exit(m.Run())
}

var allBackends = []fileio.BackendKind{
	fileio.BackendSync,
	fileio.BackendURing,
	fileio.BackendOverlapped,
}

// Runs fn once per backend this platform can actually bring up.
func eachBackend(t *testing.T, fn func(t *testing.T, sys *fileio.System)) {
	for _, kind := range allBackends {
		t.Run(string(kind), func(t *testing.T) {
			cfg := fileio.DefaultConfig()
			cfg.Backend = kind
			sys, err := fileio.New(cfg, nil)
			if err != nil {
				t.Skipf("backend %s unavailable: %v", kind, err)
			}
			t.Cleanup(func() { sys.Close() })
			fn(t, sys)
		})
	}
}

func tempfile(t *testing.T) string {
	dir := t.TempDir()
	return filepath.Join(dir, fmt.Sprintf("bgtest%016x.bin", rand.Uint64()))
}

func create(t *testing.T, sys *fileio.System) (*fileio.Handle, string) {
	t.Helper()
	path := tempfile(t)
	h, err := sys.Create(path, fileio.ReadWrite, fileio.ShareRead)
	require.NoError(t, err)
	require.True(t, h.IsValid())
	t.Cleanup(func() { h.Close() })
	return h, path
}

func pattern(n int, seed uint64) []byte {
	buf := make([]byte, n)
	util.FillPattern(buf, seed)
	return buf
}

func Test_Create_Write_Reopen_ReadEntire(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		path := filepath.Join(t.TempDir(), "t1.bin")

		h, err := sys.Create(path, fileio.ReadWrite, fileio.ShareNone)
		require.NoError(t, err)
		require.NoError(t, h.Write(bytes.Repeat([]byte{0xAB}, 32)))
		assert.Equal(t, int64(32), h.Position())
		require.NoError(t, h.Close())
		assert.False(t, h.IsValid())

		h, err = sys.Open(path, fileio.ReadOnly, fileio.ShareRead)
		require.NoError(t, err)
		defer h.Close()

		data, err := sys.ReadEntireFile(path)
		require.NoError(t, err)
		assert.Len(t, data, 32)
		assert.Equal(t, bytes.Repeat([]byte{0xAB}, 32), data)
	})
}

func Test_RoundTrip_Random(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		for range 16 {
			n := gofakeit.Number(1, 256*c.KiB)
			p := int64(gofakeit.Number(0, 4*c.MiB))
			buf := pattern(n, rand.Uint64())

			require.NoError(t, h.SetPosition(p))
			require.NoError(t, h.Write(buf))
			assert.Equal(t, p+int64(n), h.Position())

			out := make([]byte, n)
			require.NoError(t, h.SetPosition(p))
			require.NoError(t, h.Read(out))
			require.Equal(t, buf, out, "n=%d p=%d", n, p)
		}
	})
}

func Test_Two_Async_Writes_Any_Completion_Order(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, path := create(t, sys)

		a := pattern(c.MiB, 1)
		b := pattern(c.MiB, 2)

		resA, tokA, err := h.IssueWrite(a, 0)
		require.NoError(t, err)
		require.NotEqual(t, fileio.Error, resA)
		resB, tokB, err := h.IssueWrite(b, c.MiB)
		require.NoError(t, err)
		require.NotEqual(t, fileio.Error, resB)

		// resolve in the opposite order to issue
		require.NoError(t, h.Wait(&tokB))
		require.NoError(t, h.Wait(&tokA))
		assert.Equal(t, c.MiB, tokA.N())
		assert.Equal(t, c.MiB, tokB.N())

		// issue never moves the cached position
		assert.Equal(t, int64(0), h.Position())

		data, err := sys.ReadEntireFile(path)
		require.NoError(t, err)
		require.Len(t, data, 2*c.MiB)
		assert.True(t, bytes.Equal(a, data[:c.MiB]), "first MiB differs")
		assert.True(t, bytes.Equal(b, data[c.MiB:]), "second MiB differs")
	})
}

func Test_Poll_Terminates(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		buf := pattern(512*c.KiB, 3)
		res, tok, err := h.IssueWrite(buf, 0)
		require.NoError(t, err)

		deadline := time.Now().Add(30 * time.Second)
		for {
			res, err = h.Poll(&tok)
			if res != fileio.Pending { break }
			require.True(t, time.Now().Before(deadline), "poll never left Pending")
			time.Sleep(100 * time.Microsecond)
		}
		require.NoError(t, err)
		assert.Equal(t, fileio.Done, res)
		assert.Equal(t, len(buf), tok.N())
		assert.True(t, tok.Spent())

		// a resolved token stays resolved
		res, err = h.Poll(&tok)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrTokenResolved)
	})
}

func Test_Wait_On_Done_Token_Returns_Immediately(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		res, tok, err := h.IssueWrite(nil, 0)
		require.NoError(t, err)
		require.Equal(t, fileio.Done, res)

		start := time.Now()
		assert.NoError(t, h.Wait(&tok))
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 0, tok.N())

		if sys.Backend() == fileio.BackendSync {
			res, tok, err = h.IssueWrite([]byte("abc"), 0)
			require.NoError(t, err)
			require.Equal(t, fileio.Done, res, "blocking backend reported something other than Done")
			assert.NoError(t, h.Wait(&tok))
			assert.Equal(t, 3, tok.N())
		}
	})
}

func Test_Read_Past_EOF(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)
		require.NoError(t, h.Write(pattern(100, 4)))

		// in bounds: fine everywhere
		in := make([]byte, 100)
		require.NoError(t, h.SetPosition(0))
		require.NoError(t, h.Read(in))
		assert.Equal(t, pattern(100, 4), in)

		// oversized: the facade refuses the short read and does not move
		big := make([]byte, 1000)
		require.NoError(t, h.SetPosition(0))
		err := h.Read(big)
		assert.ErrorIs(t, err, fileio.ErrShortTransfer)
		assert.Equal(t, int64(0), h.Position())

		// the primitive calls the same thing Done with a short count
		res, tok, err := h.IssueRead(big, 0)
		require.NoError(t, err)
		assert.NotEqual(t, fileio.Error, res)
		require.NoError(t, h.Wait(&tok))
		assert.Equal(t, 100, tok.N())
		assert.Equal(t, pattern(100, 4), big[:100])

		// entirely past the end: zero-byte Done
		res, tok, err = h.IssueRead(big, 1<<20)
		require.NoError(t, err)
		assert.NotEqual(t, fileio.Error, res)
		require.NoError(t, h.Wait(&tok))
		assert.Equal(t, 0, tok.N())
	})
}

func Test_Poll_Read_Past_EOF(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)
		require.NoError(t, h.Write(pattern(100, 4)))

		pollDone := func(tok *fileio.Token) (fileio.Result, error) {
			deadline := time.Now().Add(30 * time.Second)
			for {
				res, err := h.Poll(tok)
				if res != fileio.Pending { return res, err }
				require.True(t, time.Now().Before(deadline), "poll never left Pending")
				time.Sleep(100 * time.Microsecond)
			}
		}

		big := make([]byte, 1000)
		_, tok, err := h.IssueRead(big, 0)
		require.NoError(t, err)
		res, err := pollDone(&tok)
		require.NoError(t, err)
		assert.Equal(t, fileio.Done, res)
		assert.Equal(t, 100, tok.N())
		assert.Equal(t, pattern(100, 4), big[:100])

		_, tok, err = h.IssueRead(big, 1<<20)
		require.NoError(t, err)
		res, err = pollDone(&tok)
		require.NoError(t, err)
		assert.Equal(t, fileio.Done, res)
		assert.Equal(t, 0, tok.N())
	})
}

func Test_ReadEntireFile_Empty(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, path := create(t, sys)
		require.NoError(t, h.Close())

		data, err := sys.ReadEntireFile(path)
		require.NoError(t, err)
		assert.NotNil(t, data)
		assert.Empty(t, data)
	})
}

func Test_ReadEntireFile_Missing(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		data, err := sys.ReadEntireFile(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
		assert.Nil(t, data)
	})
}

func Test_Create_Is_Exclusive_Open_Needs_Existing(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		_, path := create(t, sys)

		h, err := sys.Create(path, fileio.ReadWrite, fileio.ShareRead)
		assert.Error(t, err)
		assert.ErrorIs(t, err, os.ErrExist)
		assert.False(t, h.IsValid())

		h, err = sys.Open(path+".missing", fileio.ReadOnly, fileio.ShareRead)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.False(t, h.IsValid())
	})
}

func Test_Delete_Open_File(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, path := create(t, sys)
		require.NoError(t, h.Write(pattern(64, 5)))

		// may fail on platforms that lock open files, must not crash
		_ = sys.Delete(path)

		require.NoError(t, h.Close())

		res, _, err := h.IssueWrite([]byte("x"), 0)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrInvalidHandle)
		assert.ErrorIs(t, h.Read(make([]byte, 1)), fileio.ErrInvalidHandle)
		assert.ErrorIs(t, h.Write([]byte("x")), fileio.ErrInvalidHandle)
		_, err = h.Size()
		assert.ErrorIs(t, err, fileio.ErrInvalidHandle)
		assert.ErrorIs(t, h.Sync(), fileio.ErrInvalidHandle)
		assert.ErrorIs(t, h.SetPosition(0), fileio.ErrInvalidHandle)
		assert.Equal(t, int64(-1), h.Position())

		assert.NoError(t, h.Close(), "second close")
	})
}

func Test_Nil_Handle(t *testing.T) {
	var h *fileio.Handle
	assert.False(t, h.IsValid())
	assert.NoError(t, h.Close())
	assert.ErrorIs(t, h.Read(make([]byte, 1)), fileio.ErrInvalidHandle)
	res, _, err := h.IssueRead(make([]byte, 1), 0)
	assert.Equal(t, fileio.Error, res)
	assert.ErrorIs(t, err, fileio.ErrInvalidHandle)
}

func Test_Nil_Token(t *testing.T) {
	var tp *fileio.Token
	assert.Equal(t, 0, tp.N())
	assert.True(t, tp.Spent())
}

func Test_Token_Misuse(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)
		other, _ := create(t, sys)

		_, tok, err := h.IssueWrite(pattern(4096, 6), 0)
		require.NoError(t, err)
		dup := tok

		// wrong handle
		res, err := other.Poll(&tok)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrForeignToken)
		assert.ErrorIs(t, other.Wait(&tok), fileio.ErrForeignToken)

		require.NoError(t, h.Wait(&tok))
		assert.ErrorIs(t, h.Wait(&tok), fileio.ErrTokenResolved)
		assert.ErrorIs(t, h.Wait(&dup), fileio.ErrTokenResolved, "copy resolved twice")

		var zero fileio.Token
		assert.ErrorIs(t, h.Wait(&zero), fileio.ErrTokenResolved)
		assert.ErrorIs(t, h.Wait(nil), fileio.ErrTokenResolved)
	})
}

func Test_Write_On_ReadOnly(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, path := create(t, sys)
		require.NoError(t, h.Close())

		ro, err := sys.Open(path, fileio.ReadOnly, fileio.ShareRead)
		require.NoError(t, err)
		defer ro.Close()

		res, _, err := ro.IssueWrite([]byte("nope"), 0)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrAccess)
		assert.ErrorIs(t, ro.Write([]byte("nope")), fileio.ErrAccess)
	})
}

func Test_Oversized_Transfer(t *testing.T) {
	if strconv.IntSize < 64 { t.Skip("needs a 64-bit int") }

	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		// only the length is inspected, the memory behind it is never touched
		var one byte
		n := int64(c.MAX_TRANSFER) + 1
		huge := unsafe.Slice(&one, n)

		res, tok, err := h.IssueRead(huge, 0)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrTooLarge)
		assert.True(t, tok.Spent())

		res, _, err = h.IssueWrite(huge, 0)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrTooLarge)

		assert.ErrorIs(t, h.Write(huge), fileio.ErrTooLarge)
		assert.Equal(t, int64(0), h.Position())
	})
}

func Test_Transfer_Past_Single_SQE_Limit(t *testing.T) {
	if testing.Short() { t.Skip("writes over 2 GiB") }
	if strconv.IntSize < 64 { t.Skip("needs a 64-bit address space") }

	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		total := int64(c.MAX_SQE_TRANSFER)
		total += 2 * c.MiB
		buf := make([]byte, total)
		n := len(buf)
		util.FillPattern(buf[:c.MiB], 12)
		util.FillPattern(buf[n-c.MiB:], 13)
		want := xxhash.Sum64(buf)

		err := h.Write(buf)
		if errors.Is(err, syscall.ENOSPC) { t.Skipf("temp dir too small: %v", err) }
		require.NoError(t, err)
		assert.Equal(t, int64(n), h.Position())

		size, err := h.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(n), size)

		clear(buf)
		require.NoError(t, h.SetPosition(0))
		require.NoError(t, h.Read(buf))
		assert.Equal(t, int64(n), h.Position())
		assert.Equal(t, want, xxhash.Sum64(buf), "round trip over %d bytes", n)
	})
}

func Test_Offsets_And_Seek(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		h, _ := create(t, sys)

		res, _, err := h.IssueRead(make([]byte, 1), -1)
		assert.Equal(t, fileio.Error, res)
		assert.ErrorIs(t, err, fileio.ErrNegativeOffset)
		assert.ErrorIs(t, h.SetPosition(-5), fileio.ErrNegativeOffset)

		require.NoError(t, h.Write(pattern(300, 7)))

		p, err := h.Seek(-100, fileio.WhenceEnd)
		require.NoError(t, err)
		assert.Equal(t, int64(200), p)

		tail := make([]byte, 100)
		require.NoError(t, h.Read(tail))
		assert.Equal(t, pattern(300, 7)[200:], tail)

		_, err = h.Seek(-301, fileio.WhenceEnd)
		assert.ErrorIs(t, err, fileio.ErrNegativeOffset)
		assert.Equal(t, int64(300), h.Position(), "failed seek moved the position")

		p, err = h.Seek(10, fileio.WhenceBegin)
		require.NoError(t, err)
		assert.Equal(t, int64(10), p)

		size, err := h.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(300), size)

		assert.NoError(t, h.Sync())
	})
}

func Test_Utility_Layer(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src.bin")
		dst := filepath.Join(dir, "dst.bin")
		data := pattern(10_000, 8)

		require.NoError(t, sys.DumpFile(src, data))
		assert.ErrorIs(t, sys.DumpFile(src, data), os.ErrExist)

		size, err := sys.GetSize(src)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), size)

		_, err = sys.GetSize(dir)
		assert.Error(t, err)

		head := make([]byte, 16)
		require.NoError(t, sys.ReadFileN(src, head))
		assert.Equal(t, data[:16], head)

		last := make([]byte, 16)
		require.NoError(t, sys.ReadFileNLast(src, last))
		assert.Equal(t, data[len(data)-16:], last)

		assert.ErrorIs(t, sys.ReadFileNLast(src, make([]byte, len(data)+1)), fileio.ErrShortTransfer)

		require.NoError(t, os.WriteFile(dst, []byte("old contents"), 0o644))
		require.NoError(t, sys.CopyOverwrite(src, dst))
		got, err := sys.ReadEntireFile(dst)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		files, err := sys.ListFiles(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{dst, src}, files)

		require.NoError(t, sys.Delete(dst))
		assert.Error(t, sys.Delete(dst))
		_, err = sys.GetSize(dst)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func Test_File_View(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		dir := t.TempDir()
		path := filepath.Join(dir, "view.bin")
		data := pattern(3*4096+5, 9)
		require.NoError(t, sys.DumpFile(path, data))

		v, err := sys.OpenFileView(path)
		require.NoError(t, err)
		assert.Equal(t, len(data), v.Len())
		assert.Equal(t, data, v.Bytes())
		require.NoError(t, v.Close())
		assert.Equal(t, 0, v.Len())
		assert.NoError(t, v.Close())

		empty := filepath.Join(dir, "empty.bin")
		require.NoError(t, sys.DumpFile(empty, nil))
		v, err = sys.OpenFileView(empty)
		require.NoError(t, err)
		assert.NotNil(t, v.Bytes())
		assert.Equal(t, 0, v.Len())
		assert.NoError(t, v.Close())

		_, err = sys.OpenFileView(filepath.Join(dir, "missing"))
		assert.Error(t, err)
	})
}

func Test_Handles_Per_Goroutine(t *testing.T) {
	eachBackend(t, func(t *testing.T, sys *fileio.System) {
		const WORKERS = 8
		const CHUNKS = 16
		const CHUNK = 64 * c.KiB

		dir := t.TempDir()
		var wg sync.WaitGroup
		for w := range WORKERS {
			wg.Add(1)
			go func() {
				defer wg.Done()
				path := filepath.Join(dir, fmt.Sprintf("w%d.bin", w))
				h, err := sys.Create(path, fileio.ReadWrite, fileio.ShareNone)
				if err != nil { t.Error(err); return }
				defer h.Close()

				toks := make([]fileio.Token, CHUNKS)
				bufs := make([][]byte, CHUNKS)
				for i := range CHUNKS {
					bufs[i] = pattern(CHUNK, uint64(w*CHUNKS+i))
					res, tok, err := h.IssueWrite(bufs[i], int64(i*CHUNK))
					if res == fileio.Error { t.Error(err); return }
					toks[i] = tok
				}
				for i := range toks {
					if err := h.Wait(&toks[i]); err != nil { t.Error(err); return }
				}

				data, err := sys.ReadEntireFile(path)
				if err != nil { t.Error(err); return }
				for i := range CHUNKS {
					if !bytes.Equal(bufs[i], data[i*CHUNK:(i+1)*CHUNK]) {
						t.Errorf("worker %d chunk %d mismatch", w, i)
					}
				}
			}()
		}
		wg.Wait()
	})
}

func Test_Closed_System(t *testing.T) {
	sys, err := fileio.New(fileio.DefaultConfig(), nil)
	require.NoError(t, err)

	h, err := sys.Create(tempfile(t), fileio.ReadWrite, fileio.ShareRead)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, sys.Close())
	assert.NoError(t, sys.Close())

	_, err = sys.Open(h.Path(), fileio.ReadOnly, fileio.ShareRead)
	assert.ErrorIs(t, err, fileio.ErrClosed)

	res, _, err := h.IssueWrite([]byte("late"), 0)
	assert.Equal(t, fileio.Error, res)
	assert.ErrorIs(t, err, fileio.ErrClosed)
}

func Test_Result_String(t *testing.T) {
	assert.Equal(t, "Error", fileio.Error.String())
	assert.Equal(t, "Done", fileio.Done.String())
	assert.Equal(t, "Pending", fileio.Pending.String())
	assert.Equal(t, "Result(9)", fileio.Result(9).String())
}
