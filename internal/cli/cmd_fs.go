package cli

import (
	"context"
	"fmt"

	"bgio/internal/util"

	flag "github.com/spf13/pflag"
)

func catCmd() *Command {
	return &Command{
		Usage: "cat <path>",
		Short: "Write a whole file to stdout",
		Long:  "Read the file with a single transfer and write it to stdout.",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 1, 1); err != nil { return err }
			data, err := env.Sys.ReadEntireFile(args[0])
			if err != nil { return err }
			_, err = o.Write(data)
			return err
		},
	}
}

func viewCmd() *Command {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	limit := fs.IntP("limit", "n", 512, "Bytes to dump, 0 for all")

	return &Command{
		Flags: fs,
		Usage: "view [flags] <path>",
		Short: "Hex dump a file through a read-only mapping",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 1, 1); err != nil { return err }
			v, err := env.Sys.OpenFileView(args[0])
			if err != nil { return err }
			defer v.Close()
			o.Printf("%s", util.HexDump(v.Bytes(), *limit))
			return nil
		},
	}
}

func sizeCmd() *Command {
	return &Command{
		Usage: "size <path>...",
		Short: "Print file sizes in bytes",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 1, -1); err != nil { return err }
			for _, p := range args {
				n, err := env.Sys.GetSize(p)
				if err != nil { return err }
				o.Printf("%d\t%s\n", n, p)
			}
			return nil
		},
	}
}

func rmCmd() *Command {
	return &Command{
		Usage: "rm <path>...",
		Short: "Delete files",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 1, -1); err != nil { return err }
			for _, p := range args {
				if err := env.Sys.Delete(p); err != nil { return err }
			}
			return nil
		},
	}
}

func cpCmd() *Command {
	return &Command{
		Usage: "cp <src> <dst>",
		Short: "Copy a file, replacing dst",
		Long:  "Copy src to dst. An existing dst is replaced atomically.",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 2, 2); err != nil { return err }
			return env.Sys.CopyOverwrite(args[0], args[1])
		},
	}
}

func lsCmd() *Command {
	return &Command{
		Usage: "ls [dir]",
		Short: "List regular files with their sizes",
		Exec: func(_ context.Context, o *IO, env *Env, args []string) error {
			if err := wantArgs(args, 0, 1); err != nil { return err }
			dir := "."
			if len(args) == 1 { dir = args[0] }

			files, err := env.Sys.ListFiles(dir)
			if err != nil { return err }
			for _, f := range files {
				n, err := env.Sys.GetSize(f)
				if err != nil {
					o.Printf("%10s\t%s\n", "?", f)
					continue
				}
				o.Printf("%10d\t%s\n", n, f)
			}
			o.Println(fmt.Sprintf("%d file(s)", len(files)))
			return nil
		},
	}
}
