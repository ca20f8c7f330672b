// cob inspects compiled unit scripts and runs them against a unit manifest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/host"
	"github.com/chazu/unitscript/manifest"
	"github.com/chazu/unitscript/store"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: cob <command> [options] [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  info <file.cob>        Print the module, piece and sound tables\n")
	fmt.Fprintf(os.Stderr, "  dis <file.cob>         Disassemble every module\n")
	fmt.Fprintf(os.Stderr, "  run [options] [dirs]   Run the units described by unit.toml in each dir\n")
	fmt.Fprintf(os.Stderr, "  snapshots <db> [id]    List saved snapshots\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  cob dis armcom.cob\n")
	fmt.Fprintf(os.Stderr, "  cob run -ticks 90 -events ./units/armcom\n")
	fmt.Fprintf(os.Stderr, "  cob run -resume -save ./units/armcom ./units/corthud\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "info":
		err = withScript(args, func(s *cob.Script) { fmt.Println(s) })
	case "dis":
		err = withScript(args, func(s *cob.Script) { fmt.Print(cob.Disassemble(s)) })
	case "run":
		err = run(args)
	case "snapshots":
		err = snapshots(args)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "cob: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withScript(args []string, fn func(*cob.Script)) error {
	if len(args) == 0 {
		return fmt.Errorf("missing script file")
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		s, err := cob.Load(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if len(args) > 1 {
			fmt.Printf("== %s\n", path)
		}
		fn(s)
	}
	return nil
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	ticks := fs.Int("ticks", 0, "Ticks to run (default from [run] ticks)")
	verbosity := fs.Int("v", -1, "Log verbosity (default from [log] verbosity)")
	events := fs.Bool("events", false, "Print host effects as they happen")
	resume := fs.Bool("resume", false, "Restore the latest snapshots before running")
	save := fs.Bool("save", false, "Save snapshots after running")
	fs.Parse(args)

	dirs := fs.Args()
	if len(dirs) == 0 {
		m, err := manifest.FindAndLoad(".")
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no %s found", manifest.FileName)
		}
		dirs = []string{m.Dir}
	}

	ctx := context.Background()
	units, err := host.LoadUnits(ctx, dirs)
	if err != nil {
		return err
	}
	first := units[0].Manifest

	v := first.Log.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	commonlog.Configure(v, first.LogPath())

	var st *store.Store
	if *resume || *save {
		path := first.StorePath()
		if path == "" {
			return fmt.Errorf("-resume and -save need [store] path in %s", manifest.FileName)
		}
		if st, err = store.Open(path); err != nil {
			return err
		}
		defer st.Close()
	}

	w := host.NewWorld(first.TickDelta())
	for _, u := range units {
		if err := w.Add(u); err != nil {
			return err
		}
	}
	if *resume {
		n, err := w.Restore(ctx, st)
		if err != nil {
			return err
		}
		fmt.Printf("restored %d unit(s) at tick %d\n", n, w.Ticks())
	}

	wk := host.NewWorker(w)
	defer wk.Stop()

	n := *ticks
	if n <= 0 {
		n = first.Run.Ticks
	}
	seen := 0
	for i := 0; i < n; i++ {
		if err := wk.Advance(ctx, 1); err != nil {
			return err
		}
		if *events {
			if err := wk.Do(ctx, func(w *host.World) error {
				all := w.Events()
				for _, e := range all[seen:] {
					fmt.Println(e)
				}
				seen = len(all)
				return nil
			}); err != nil {
				return err
			}
		}
	}

	return wk.Do(ctx, func(w *host.World) error {
		fmt.Printf("tick %d, t=%.3fs\n", w.Ticks(), w.Now())
		for _, u := range w.Units() {
			fmt.Printf("\n%s (%s)\n", u.Name, u.ID)
			for _, t := range u.Context.Threads() {
				fmt.Printf("  thread %s\n", t)
			}
			for _, a := range u.Context.Animations() {
				fmt.Printf("  anim %s\n", a)
			}
			fmt.Print(indent(u.Pose.Describe(u.Model), "  "))
		}
		if *save {
			if err := w.Save(ctx, st); err != nil {
				return err
			}
			fmt.Printf("\nsaved %d unit(s) at tick %d\n", len(w.Units()), w.Ticks())
		}
		return nil
	})
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "")
}

// ---------------------------------------------------------------------------
// snapshots
// ---------------------------------------------------------------------------

func snapshots(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing database path")
	}
	st, err := store.Open(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	var ids []uuid.UUID
	if len(args) > 1 {
		id, err := uuid.Parse(args[1])
		if err != nil {
			return err
		}
		ids = []uuid.UUID{id}
	} else if ids, err = st.Units(ctx); err != nil {
		return err
	}

	for _, id := range ids {
		records, err := st.List(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s  %-12s tick %6d  %s\n", r.Unit, r.Name, r.Tick, r.Saved.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}
