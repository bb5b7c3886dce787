package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bokwoon95/mgen"
	"github.com/bokwoon95/mgen/cli"
)

const usage = `Usage:
  mgen [--configdir DIR] [--verbose] COMMAND [FLAGS]
Commands:
  generate  generate the site
  watch     generate the site and regenerate it on every source change
  serve     serve the generated site for previewing
  publish   upload the generated site to object storage
  version   print the version`

func main() {
	err := func() error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configHomeDir := os.Getenv("XDG_CONFIG_HOME")
		if configHomeDir == "" {
			configHomeDir = homeDir
		}
		var configDir string
		var verbose bool
		flagset := flag.NewFlagSet("", flag.ContinueOnError)
		flagset.StringVar(&configDir, "configdir", "", "Directory holding target.json and publish.json.")
		flagset.BoolVar(&verbose, "verbose", false, "Log debug messages.")
		flagset.Usage = func() {
			fmt.Fprintln(flagset.Output(), usage+"\nFlags:")
			flagset.PrintDefaults()
		}
		err = flagset.Parse(os.Args[1:])
		if err != nil {
			return err
		}
		args := flagset.Args()
		if configDir == "" {
			configDir = filepath.Join(configHomeDir, "mgen-config")
		} else {
			configDir = filepath.Clean(configDir)
		}
		err = os.MkdirAll(configDir, 0755)
		if err != nil {
			return err
		}
		configDir, err = filepath.Abs(filepath.FromSlash(configDir))
		if err != nil {
			return err
		}
		if len(args) == 0 {
			flagset.Usage()
			return nil
		}
		logger := cli.NewLogger(os.Stdout, verbose)
		var cmd interface{ Run() error }
		switch args[0] {
		case "generate":
			cmd, err = cli.GenerateCommand(configDir, logger, args[1:]...)
		case "watch":
			cmd, err = cli.WatchCommand(configDir, logger, args[1:]...)
		case "serve":
			cmd, err = cli.ServeCommand(logger, args[1:]...)
		case "publish":
			cmd, err = cli.PublishCommand(configDir, logger, args[1:]...)
		case "version":
			fmt.Println(cli.Version)
			return nil
		default:
			return fmt.Errorf("unknown command: %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		err = cmd.Run()
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	}()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		var templateErr mgen.TemplateError
		if errors.As(err, &templateErr) && templateErr.Line > 0 {
			fmt.Println("template error at " + templateErr.Name + " line " + fmt.Sprint(templateErr.Line))
		}
		fmt.Println(err)
		os.Exit(1)
	}
}
