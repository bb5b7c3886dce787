package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bokwoon95/mgen"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the source tree must stay unchanged before a
// regeneration starts.
const watchDebounce = 300 * time.Millisecond

type WatchCmd struct {
	Options   mgen.Options
	ConfigDir string
	Addr      string
	Logger    *slog.Logger
	Stdout    io.Writer
}

func WatchCommand(configDir string, logger *slog.Logger, args ...string) (*WatchCmd, error) {
	cmd := WatchCmd{
		ConfigDir: configDir,
		Logger:    logger,
	}
	var addr string
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.StringVar(&addr, "addr", "", "Also serve the target directory on this address.")
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  mgen watch [FLAGS]
Generates the site, then generates it again whenever a file in the source
directory changes. Takes the same flags as generate.
Flags:`)
		flagset.PrintDefaults()
	}
	options, err := parseOptions(flagset, args)
	if err != nil {
		return nil, err
	}
	if flagset.NArg() > 0 {
		flagset.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagset.Args(), " "))
	}
	cmd.Options = options
	cmd.Addr = addr
	return &cmd, nil
}

func (cmd *WatchCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Logger == nil {
		cmd.Logger = NewLogger(cmd.Stdout, false)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	generator, closers, err := newGenerator(cmd.ConfigDir, cmd.Options, cmd.Logger)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	sourceDir, err := filepath.Abs(cmd.Options.Source)
	if err != nil {
		return err
	}
	targetDir, err := filepath.Abs(cmd.Options.Target)
	if err != nil {
		return err
	}
	err = watchDirs(watcher, sourceDir, targetDir)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		go func() {
			err := servePreview(ctx, cmd.Stdout, cmd.Addr, cmd.Options.Target, cmd.Logger)
			if err != nil {
				cmd.Logger.Error(err.Error())
			}
		}()
	}
	regenerate := func() {
		err := generator.Generate(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// A broken source is reported and waited out, the next change
			// may fix it.
			cmd.Logger.Error(err.Error())
		}
	}
	regenerate()
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if isWithin(targetDir, event.Name) {
				continue
			}
			cmd.Logger.Debug("changed", slog.String("name", event.Name), slog.String("op", event.Op.String()))
			if event.Has(fsnotify.Create) {
				if fileInfo, err := os.Stat(event.Name); err == nil && fileInfo.IsDir() {
					err := watchDirs(watcher, event.Name, targetDir)
					if err != nil {
						cmd.Logger.Error(err.Error())
					}
				}
			}
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmd.Logger.Error(err.Error())
		case <-timer.C:
			regenerate()
		}
	}
}

// watchDirs adds rootDir and every directory below it to the watcher, except
// for the target directory which may live inside the source directory.
func watchDirs(watcher *fsnotify.Watcher, rootDir, targetDir string) error {
	return filepath.WalkDir(rootDir, func(filePath string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !dirEntry.IsDir() {
			return nil
		}
		if isWithin(targetDir, filePath) {
			return fs.SkipDir
		}
		return watcher.Add(filePath)
	})
}

func isWithin(dir, name string) bool {
	rel, err := filepath.Rel(dir, name)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
