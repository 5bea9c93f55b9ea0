// vvfs-filetypes classifies the files under the given paths and prints one
// "path<TAB>TYPE" line per file. With --watch it keeps running and re-detects
// files as they change, logging every type that flips.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	internal "github.com/ZanzyTHEbar/vvfs-filetypes/vvfs"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filesystem/vfile"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filesystem/watcher"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/builtin"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/indexing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	dsn        string
	ignoreFile string
	workers    int
	watch      bool
	persist    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet(internal.DefaultAppName, pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./config.yaml or "+internal.DefaultGlobalConfigFile+")")
	flagSet.StringVar(&opts.dsn, "db", "", "libsql DSN or path of the attribute store (overrides filetypes.attributeStore.dsn)")
	flagSet.BoolVar(&opts.persist, "persist", false, "keep detection results in "+internal.DefaultAttributeDBPath)
	flagSet.StringVar(&opts.ignoreFile, "ignore-file", "", "gitignore-style rules file (overrides filetypes.ignoreFile)")
	flagSet.IntVarP(&opts.workers, "workers", "j", 0, "concurrent classifications (0 picks a default)")
	flagSet.BoolVarP(&opts.watch, "watch", "w", false, "keep watching the paths and re-detect changed files")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [path...]\n\n", internal.DefaultAppName)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	switch {
	case opts.dsn != "":
		cfg.FileTypes.AttributeStore.DSN = opts.dsn
	case opts.persist && cfg.FileTypes.AttributeStore.DSN == "":
		cfg.FileTypes.AttributeStore.DSN = internal.DefaultAttributeDBPath
	}
	if opts.ignoreFile != "" {
		cfg.FileTypes.IgnoreFile = opts.ignoreFile
	}

	paths := flagSet.Args()
	if len(paths) == 0 {
		paths = cfg.Watcher.Paths
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", p, err)
		}
		roots = append(roots, abs)
	}

	logger := internal.GetLevelLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg.FileTypes.AttributeStore.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close attribute store")
		}
	}()

	_, err = classify(ctx, logger, cfg, opts, roots, st, out)
	return err
}

// classify runs one classification pass over roots and returns the
// detection statistics of the pass.
func classify(ctx context.Context, logger zerolog.Logger, cfg *config.Config, opts options, roots []string, st store, out io.Writer) (stats filetypes.Stats, err error) {
	fsys, err := vfile.NewPersistent(nil, st)
	if err != nil {
		return stats, err
	}
	mopts := cfg.FileTypes.Options()
	mopts.Attributes = st
	mopts.Generations = st
	mopts.Rules = st
	mopts.ReadBarrier = fsys.ReadBarrier
	mopts.Owner = &changeReporter{logger: logger}

	m := filetypes.NewManager(mopts)
	if err := m.Init(ctx); err != nil {
		return stats, fmt.Errorf("failed to initialize file type manager: %w", err)
	}
	defer func() {
		shutdown(logger, m)
		stats = m.Stats()
	}()

	if err := builtin.Register(m); err != nil {
		return stats, err
	}
	if err := cfg.FileTypes.Apply(m, roots...); err != nil {
		return stats, err
	}

	for _, root := range roots {
		if err := classifyRoot(ctx, m, fsys, root, opts.workers, out); err != nil {
			return stats, err
		}
	}

	if !opts.watch {
		return stats, nil
	}

	w, err := watcher.WatchPaths(ctx, roots, cfg.Watcher.Settings(), fsys.Handler(m))
	if err != nil {
		return stats, err
	}
	logger.Info().Strs("paths", roots).Msg("Watching for changes")
	<-ctx.Done()
	return stats, w.Close()
}

type result struct {
	path string
	t    *filetypes.FileType
}

func classifyRoot(ctx context.Context, m *filetypes.Manager, fsys *vfile.FileSystem, root string, workers int, out io.Writer) error {
	files, err := fsys.Scan(root)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		results = make([]result, 0, len(files))
	)
	err = vfile.ForEach(ctx, files, workers, func(ctx context.Context, f *vfile.File) error {
		if m.IsIgnoredFile(f) {
			return nil
		}
		t := m.FileTypeByFile(f)
		mu.Lock()
		results = append(results, result{path: f.Path(), t: t})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	for _, r := range results {
		if _, err := fmt.Fprintf(out, "%s\t%s\n", r.path, r.t.Name()); err != nil {
			return err
		}
	}
	return nil
}

type store interface {
	filetypes.AttributeStorage
	filetypes.GenerationStore
	filetypes.RulesStore
	indexing.IdentityStore
	Close() error
}

func openStore(dsn string) (store, error) {
	if dsn == "" {
		return db.NewMemoryAttributes(), nil
	}
	adb, err := db.NewAttributeDB(dsn)
	if err != nil {
		return nil, err
	}
	return adb, nil
}

func shutdown(logger zerolog.Logger, m *filetypes.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("File type manager did not shut down cleanly")
	}
	logger.Info().Fields(m.Stats().GetMetrics()).Msg("File type detection statistics")
}

// changeReporter logs the outcome of re-detection.
type changeReporter struct {
	logger zerolog.Logger
}

func (r *changeReporter) TypesChanged(changes []filetypes.TypeChange) {
	for _, c := range changes {
		r.logger.Info().
			Str("path", c.File.Path()).
			Str("before", typeName(c.Before)).
			Str("after", typeName(c.After)).
			Msg("File type changed")
	}
}

func (r *changeReporter) ReparseFiles(files []filetypes.File) {
	for _, f := range files {
		r.logger.Debug().Str("path", f.Path()).Msg("File needs reparse")
	}
}

func typeName(t *filetypes.FileType) string {
	if t == nil {
		return "-"
	}
	return t.Name()
}
