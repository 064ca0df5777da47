// h3rvfs inspects HoMM3 game archives: it lists LOD/SND/VID (and RAR/7z)
// containers, extracts single resources, walks a game directory and dumps
// the loaded entry tables as CBOR.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/corwinn/h3r-sub000/pkg/config"
	"github.com/corwinn/h3r-sub000/pkg/index"
	"github.com/corwinn/h3r-sub000/pkg/initialization"
	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/paths"
	"github.com/corwinn/h3r-sub000/pkg/persistence"
	"github.com/corwinn/h3r-sub000/pkg/resource"
	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/task"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
	"github.com/corwinn/h3r-sub000/pkg/walk"
)

const progressInterval = 100 * time.Millisecond

type options struct {
	configPath string
	gameDir    string
	logLevel   string
	output     string
	quiet      bool
	chunk      int
}

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("h3rvfs", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (.json or .yaml; default: config.json in the data directory)")
	flagSet.StringVar(&opts.gameDir, "game-dir", "", "game directory scanned for archives")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	flagSet.StringVarP(&opts.output, "output", "o", "", "output file for cat and index (- is stdout)")
	flagSet.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress")
	flagSet.IntVar(&opts.chunk, "chunk", 64<<10, "read size used by cat")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	comp, err := initialization.Bootstrap(initialization.Options{
		ConfigPath: opts.configPath,
		GameDir:    opts.gameDir,
		LogLevel:   opts.logLevel,
		LogOutput:  os.Stderr,
	})
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &app{cfg: comp.Config, opts: opts, fsys: comp.Fs, m: comp.Manager}
	args := flagSet.Args()
	switch args[0] {
	case "ls":
		return app.ls(ctx, args[1:])
	case "cat", "extract":
		if len(args) != 2 {
			return errors.New("cat needs exactly one resource name")
		}
		return app.cat(ctx, args[1])
	case "scan":
		dir := app.cfg.GameDir
		if len(args) > 1 {
			dir = args[1]
		}
		return app.scan(ctx, dir)
	case "index":
		return app.index(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `h3rvfs: inspect HoMM3 game archives.

Usage:
  h3rvfs [flags] ls [archive...]       list entries (default: every archive under the game directory)
  h3rvfs [flags] cat <name>            write one resource to stdout or --output
  h3rvfs [flags] scan [dir]            list the archives found under dir
  h3rvfs [flags] index [archive...]    write the entry tables as CBOR to --output

Flags:
`)
	flagSet.PrintDefaults()
}

type app struct {
	cfg  *config.Config
	opts options
	fsys afero.Fs
	m    *resource.Manager
}

// await polls the manager until the operation behind info finishes, printing
// its status to stderr while it runs.
func (a *app) await(ctx context.Context, info *resource.Info) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return a.m.Wait(gctx)
	})
	if !a.opts.quiet {
		g.Go(func() error {
			tick := time.NewTicker(progressInterval)
			defer tick.Stop()
			last := ""
			for {
				select {
				case <-done:
					if last != "" {
						fmt.Fprintln(os.Stderr)
					}
					return nil
				case <-tick.C:
					if s := info.Status().String(); s != last {
						fmt.Fprintf(os.Stderr, "\r\033[K%s", s)
						last = s
					}
				}
			}
		})
	}
	return g.Wait()
}

// load activates the named archives, or every archive under the game
// directory when none are named.
func (a *app) load(ctx context.Context, archives []string) error {
	if len(archives) == 0 {
		archives = a.cfg.Archives
	}
	if len(archives) == 0 {
		info := a.m.LoadDir(a.cfg.GameDir)
		if err := a.await(ctx, info); err != nil {
			return err
		}
		if !info.Success() {
			if len(info.Loaded()) == 0 {
				return info.Err()
			}
			logger.Warn("Some archives were skipped", "err", info.Err())
		}
	}
	for _, p := range archives {
		info := a.m.Load(p)
		if err := a.await(ctx, info); err != nil {
			return err
		}
		if !info.Success() {
			logger.Warn("Archive skipped", "path", p, "err", info.Err())
		}
	}
	if len(a.m.Archives()) == 0 {
		return errors.New("no usable archives")
	}
	a.recordFingerprints()
	return nil
}

// recordFingerprints remembers the entry table of every loaded archive in the
// data directory and warns about archives modified since the last run.
func (a *app) recordFingerprints() {
	state, err := persistence.Open(a.fsys, paths.GetDataDir())
	if err != nil {
		logger.Warn("State unavailable", "err", err)
		return
	}
	changed, err := state.RecordFingerprints(a.m.Archives())
	if err != nil {
		logger.Warn("Failed to save archive fingerprints", "path", state.Path(), "err", err)
	}
	for _, c := range changed {
		logger.Warn("Archive changed since last run", "path", c.Path, "previous", short(c.Previous), "current", short(c.Current))
	}
}

func short(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

func (a *app) ls(ctx context.Context, archives []string) error {
	if err := a.load(ctx, archives); err != nil {
		return err
	}
	for _, v := range a.m.Archives() {
		fp := v.Fingerprint()
		fmt.Printf("%s %s (%d entries, %s)\n", v.Format(), v.Path(), v.Len(), hex.EncodeToString(fp[:8]))
		v.Walk(func(e vfs.Entry) bool {
			packed := ""
			if e.Compressed() {
				packed = fmt.Sprintf(" (zlib %d)", e.CompressedSize)
			}
			fmt.Printf("  %-40s %10d%s\n", e.Name, e.Size, packed)
			return true
		})
	}
	return nil
}

func (a *app) cat(ctx context.Context, name string) error {
	if err := a.load(ctx, nil); err != nil {
		return err
	}
	info := a.m.GetResource(name)
	if err := a.await(ctx, info); err != nil {
		return err
	}
	if !info.Success() {
		return info.Err()
	}

	var out io.Writer = os.Stdout
	if a.opts.output != "" && a.opts.output != "-" {
		f, err := stream.Create(a.fsys, a.opts.output, a.cfg.RetryPolicy(), logger.Log)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	n, err := copyBridged(ctx, info.Stream(), out, a.opts.chunk, !a.opts.quiet)
	if err != nil {
		return err
	}
	logger.Debug("Resource extracted", "name", name, "bytes", n)
	return nil
}

// copyBridged reads src through a stream.Bridge, one chunk per call, and
// writes each chunk to dst.
func copyBridged(ctx context.Context, src stream.Stream, dst io.Writer, chunk int, progress bool) (int64, error) {
	if chunk <= 0 {
		chunk = 64 << 10
	}
	results := make(chan stream.Result, 1)
	b := stream.NewBridge(src, func(r stream.Result) { results <- r }, nil, task.WithLogger(logger.Log))
	defer b.Close()

	buf := make([]byte, chunk)
	var total int64
	for {
		b.Read(buf)
		var r stream.Result
		select {
		case r = <-results:
		case <-ctx.Done():
			b.Cancel()
			<-b.Completed()
			return total, ctx.Err()
		}
		if r.N > 0 {
			if _, err := dst.Write(buf[:r.N]); err != nil {
				return total, err
			}
			total += int64(r.N)
		}
		if progress && r.Size > 0 {
			fmt.Fprintf(os.Stderr, "\r\033[K%d/%d bytes", total, r.Size)
		}
		if r.Err == io.EOF || (r.Err == nil && r.N == 0) {
			break
		}
		if r.Err != nil {
			return total, r.Err
		}
		// The worker is still unwinding the call that delivered r.
		<-b.Completed()
	}
	if progress {
		fmt.Fprintln(os.Stderr)
	}
	return total, nil
}

func (a *app) scan(ctx context.Context, dir string) error {
	var formats vfs.Registry
	for _, f := range a.m.Formats() {
		formats.Register(f)
	}

	var walkErr error
	archives := 0
	w := walk.New(a.fsys, dir,
		func(it walk.Item) bool {
			if !it.Dir && formats.IsArchive(it.Path) {
				archives++
				fmt.Printf("%6d %12d %s\n", it.Seq, it.Size, it.Path)
			}
			return true
		},
		func(err error) { walkErr = err },
		walk.WithLogger(logger.Log),
	)
	defer w.Close()

	select {
	case <-w.Finished():
	case <-ctx.Done():
		w.Stop()
		<-w.Finished()
	}
	if walkErr != nil {
		return walkErr
	}
	fmt.Fprintf(os.Stderr, "%d archives found\n", archives)
	return ctx.Err()
}

func (a *app) index(ctx context.Context, archives []string) error {
	if a.opts.output == "" {
		return errors.New("index needs --output")
	}
	if err := a.load(ctx, archives); err != nil {
		return err
	}
	var b index.Builder
	info := a.m.Enumerate(b.Add)
	if err := a.await(ctx, info); err != nil {
		return err
	}
	if a.opts.output == "-" {
		return index.Encode(os.Stdout, b.Index())
	}
	data, err := index.Marshal(b.Index())
	if err != nil {
		return err
	}
	if err := afero.WriteFile(a.fsys, a.opts.output, data, 0o644); err != nil {
		return err
	}
	logger.Info("Index written", "path", a.opts.output, "archives", len(b.Index().Archives), "bytes", len(data))
	return nil
}
