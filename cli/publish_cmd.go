package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bokwoon95/mgen"
)

type PublishCmd struct {
	Target        string
	PublishConfig PublishConfig
	Logger        *slog.Logger
	Stdout        io.Writer
}

func PublishCommand(configDir string, logger *slog.Logger, args ...string) (*PublishCmd, error) {
	cmd := PublishCmd{
		Logger: logger,
	}
	var deleteFlag bool
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.BoolVar(&deleteFlag, "delete", false, "Delete published objects that are not part of the site anymore.")
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  mgen publish [FLAGS]
Uploads the generated target directory to the storage described by
publish.json in the config directory.
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
	cmd.Target = options.Target
	cmd.PublishConfig, err = LoadPublishConfig(configDir)
	if err != nil {
		return nil, err
	}
	if deleteFlag {
		cmd.PublishConfig.Delete = true
	}
	return &cmd, nil
}

func (cmd *PublishCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Logger == nil {
		cmd.Logger = NewLogger(cmd.Stdout, false)
	}
	ctx := context.Background()
	storage, err := NewObjectStorage(ctx, cmd.PublishConfig, cmd.Logger)
	if err != nil {
		return err
	}
	var limitInterval time.Duration
	if cmd.PublishConfig.LimitInterval != "" {
		limitInterval, err = time.ParseDuration(cmd.PublishConfig.LimitInterval)
		if err != nil {
			return err
		}
	}
	publisher, err := mgen.NewPublisher(mgen.PublisherConfig{
		FS:            os.DirFS(cmd.Target),
		Storage:       storage,
		Concurrency:   cmd.PublishConfig.Concurrency,
		LimitInterval: limitInterval,
		LimitBurst:    cmd.PublishConfig.LimitBurst,
		Delete:        cmd.PublishConfig.Delete,
		Logger:        cmd.Logger,
	})
	if err != nil {
		return err
	}
	result, err := publisher.Publish(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "uploaded %d objects (%d bytes), deleted %d objects\n", result.Uploaded, result.Bytes, result.Deleted)
	return nil
}
