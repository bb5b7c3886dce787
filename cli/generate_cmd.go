package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bokwoon95/mgen"
)

type GenerateCmd struct {
	Options   mgen.Options
	ConfigDir string
	Logger    *slog.Logger
	Stdout    io.Writer
}

func GenerateCommand(configDir string, logger *slog.Logger, args ...string) (*GenerateCmd, error) {
	cmd := GenerateCmd{
		ConfigDir: configDir,
		Logger:    logger,
	}
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  mgen generate [FLAGS]
Generates the site found in the source directory into the target directory.
Options are read from source/options.yaml and overridden by flags.
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
	return &cmd, nil
}

func (cmd *GenerateCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Logger == nil {
		cmd.Logger = NewLogger(cmd.Stdout, false)
	}
	generator, closers, err := newGenerator(cmd.ConfigDir, cmd.Options, cmd.Logger)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	err = generator.Generate(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "generated %d posts into %s\n", len(generator.Index().All), cmd.Options.Target)
	return nil
}

// registerOptionFlags binds a flag to every field of options.
func registerOptionFlags(flagset *flag.FlagSet, options *mgen.Options) {
	flagset.StringVar(&options.Source, "source", options.Source, "Path to the site source.")
	flagset.StringVar(&options.Target, "target", options.Target, "Path for the output.")
	flagset.StringVar(&options.URL, "url", options.URL, "Public URL of the site, excluding the webroot.")
	flagset.StringVar(&options.Webroot, "webroot", options.Webroot, "Root path the site is deployed under.")
	flagset.IntVar(&options.Posts, "posts", options.Posts, "Number of posts per page.")
	flagset.IntVar(&options.Items, "items", options.Items, "Number of items in the RSS feed.")
	flagset.StringVar(&options.Title, "title", options.Title, "Title of the site. Defaults to the title-cased source directory name.")
	flagset.Var(&options.Years, "years", "Comma separated year filter.")
	flagset.StringVar(&options.Lang, "lang", options.Lang, "Language of the site.")
	flagset.BoolVar(&options.Use24Hours, "use24hours", options.Use24Hours, "Read post times as 24-hour HH:MM instead of HH:MM AM/PM.")
	flagset.BoolVar(&options.Transliterate, "transliterate", options.Transliterate, "Transliterate non-ASCII characters in ids and links.")
	flagset.Var(&options.IgnoreTags, "ignore-tag", "Comma separated tags whose posts are left out of the common listings.")
	flagset.Var(&options.RobotsDisallow, "robots-disallow", "Comma separated paths to disallow in robots.txt.")
	flagset.BoolVar(&options.Clear, "clear", options.Clear, "Empty the target before generating.")
	flagset.StringVar(&options.CodeStyle, "code-style", options.CodeStyle, "Chroma style of code blocks.")
	flagset.IntVar(&options.FeedExcerpt, "feed-excerpt", options.FeedExcerpt, "Cut feed item descriptions to this many bytes of HTML (0 keeps the full post).")
	flagset.BoolVar(&options.SkipPosts, "skip-posts", options.SkipPosts, "Do not generate posts.")
	flagset.BoolVar(&options.SkipPages, "skip-pages", options.SkipPages, "Do not generate pages.")
	flagset.BoolVar(&options.SkipTags, "skip-tags", options.SkipTags, "Do not generate tags.")
	flagset.BoolVar(&options.SkipRSS, "skip-rss", options.SkipRSS, "Do not generate RSS feeds.")
	flagset.BoolVar(&options.SkipResources, "skip-resources", options.SkipResources, "Do not copy resources.")
	flagset.BoolVar(&options.SkipIndexes, "skip-indexes", options.SkipIndexes, "Do not generate index files.")
	flagset.BoolVar(&options.SkipSitemap, "skip-sitemap", options.SkipSitemap, "Do not generate the sitemap.")
	flagset.BoolVar(&options.SkipMisc, "skip-misc", options.SkipMisc, "Do not generate misc pages.")
	flagset.BoolVar(&options.SkipRouting, "skip-routing", options.SkipRouting, "Do not generate the site.yaml routing descriptor.")
	flagset.BoolVar(&options.SkipRobots, "skip-robots", options.SkipRobots, "Do not generate robots.txt.")
}

// parseOptions resolves the options of a run. Defaults are overridden by the
// options file of the source directory, which is overridden by the flags
// given in args. The flags are parsed twice: once to find the source
// directory and once more to take precedence over the options file.
func parseOptions(flagset *flag.FlagSet, args []string) (mgen.Options, error) {
	options := mgen.DefaultOptions()
	options.Source = "."
	registerOptionFlags(flagset, &options)
	err := flagset.Parse(args)
	if err != nil {
		return mgen.Options{}, err
	}
	source := options.Source
	err = mgen.LoadOptionsFile(&options, source)
	if err != nil {
		return mgen.Options{}, err
	}
	options.Source = source
	err = flagset.Parse(args)
	if err != nil {
		return mgen.Options{}, err
	}
	err = options.Normalize()
	if err != nil {
		return mgen.Options{}, err
	}
	return options, nil
}

// newGenerator constructs the generator of a run along with its output
// filesystem. The returned closers must be closed even if an error is
// returned.
func newGenerator(configDir string, options mgen.Options, logger *slog.Logger) (*mgen.Generator, []io.Closer, error) {
	fsys, closers, err := LoadTarget(configDir, options.Target, logger)
	if err != nil {
		return nil, closers, err
	}
	generator, err := mgen.NewGenerator(mgen.GeneratorConfig{
		Options: options,
		FS:      fsys,
		Logger:  logger,
	})
	if err != nil {
		return nil, closers, err
	}
	return generator, closers, nil
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
}
