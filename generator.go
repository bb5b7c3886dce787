package mgen

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/bokwoon95/mgen/stacktrace"
	"github.com/yuin/goldmark"
)

// visiblePageNumbers is the number of page numbers shown in the pagination
// of a listing page.
const visiblePageNumbers = 9

// Fixed directories of the source tree.
const (
	SourcePostsDir     = "posts"
	SourceTemplatesDir = "templates"
	SourcePagesDir     = "pages"
	SourceResourcesDir = "resources"
)

// Fixed templates.
const (
	IndexTemplate   = "index.html"
	ListingTemplate = "page.html"
)

// Site is the site information available to every template.
type Site struct {
	// Title of the site.
	Title string

	// Lang is the language tag of the site.
	Lang string

	// URL is the public base URL of the site, without a trailing slash.
	URL string

	// Webroot is the path prefix the site is deployed under, starting and
	// ending with a slash.
	Webroot string

	// Years is the year filter.
	Years []int

	// GeneratedAt is when the current run started.
	GeneratedAt time.Time
}

// PostData is the data passed to post templates.
type PostData struct {
	Site Site
	Post *Post

	// Body is the post's markdown body rendered to HTML.
	Body template.HTML
}

// ListingData is the data passed to listing templates.
type ListingData struct {
	Site       Site
	Posts      []*Post
	PageNumber int
	TotalPages int

	// Filters identifies the grouping the listing belongs to.
	Filters    GroupKey
	Pagination Pagination
}

// IndexData is the data passed to the index template.
type IndexData struct {
	Site          Site
	Tags          map[string][]*Post
	TagNames      []string
	Posts         []*Post
	Pages         []PageOfPosts
	Dates         map[int]map[int]map[int][]*Post
	Years         []int
	MonthsByPosts map[int][]int
}

// MiscData is the data passed to misc page templates.
type MiscData struct {
	Site Site

	// Name of the misc page.
	Name string
}

// GeneratorConfig holds the parameters needed to construct a Generator.
type GeneratorConfig struct {
	// Options of the run.
	Options Options

	// SourceFS is the source tree. Defaults to os.DirFS(Options.Source).
	SourceFS fs.FS

	// FS is the output tree. Required.
	FS FS

	// Logger is used for reporting the progress of a run. Defaults to a
	// logger that discards everything.
	Logger *slog.Logger
}

// Generator generates a site from its source tree. A Generator must not be
// used by more than one goroutine at a time.
type Generator struct {
	// Options of the run.
	Options Options

	// Site is the site information passed to templates.
	Site Site

	// Resolver maps posts and groupings onto output paths and links.
	Resolver *Resolver

	// SourceFS is the source tree.
	SourceFS fs.FS

	// FS is the output tree.
	FS FS

	// Logger is used for reporting the progress of a run.
	Logger *slog.Logger

	markdown goldmark.Markdown
	funcMap  map[string]any

	// The fields below are reset at the start of every run.
	fsys      FS
	renderer  *Renderer
	index     *ContentIndex
	bodies    map[*Post]template.HTML
	miscPages []string
}

// NewGenerator constructs a new Generator.
func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if config.FS == nil {
		return nil, &ConfigurationError{Reason: "no output filesystem provided"}
	}
	options := config.Options
	if options.Posts < 1 {
		return nil, &ConfigurationError{Reason: "posts must be at least 1, got " + strconv.Itoa(options.Posts)}
	}
	sourceFS := config.SourceFS
	if sourceFS == nil {
		if options.Source == "" {
			return nil, &ConfigurationError{Reason: "no source specified"}
		}
		sourceFS = os.DirFS(options.Source)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver := NewResolver(ResolverConfig{
		URL:            options.URL,
		Webroot:        options.Webroot,
		Transliterator: NewTransliterator(options.Transliterate),
	})
	gen := &Generator{
		Options: options,
		Site: Site{
			Title:   options.Title,
			Lang:    options.Lang,
			URL:     resolver.URL,
			Webroot: resolver.Webroot,
			Years:   options.Years,
		},
		Resolver: resolver,
		SourceFS: sourceFS,
		FS:       config.FS,
		Logger:   logger,
		markdown: NewMarkdown(options.CodeStyle),
	}
	gen.funcMap = gen.newFuncMap()
	return gen, nil
}

// stage is one step of the pipeline. emit returns the number of artifacts
// it produced.
type stage struct {
	name string
	skip bool
	emit func() (int, error)
}

// Generate runs the whole pipeline once. The first error aborts the run.
func (gen *Generator) Generate(ctx context.Context) error {
	startedAt := time.Now()
	gen.Site.GeneratedAt = startedAt
	gen.fsys = gen.FS.WithContext(ctx)
	gen.bodies = make(map[*Post]template.HTML)
	gen.miscPages = nil
	gen.index = nil
	templatesFS, err := fs.Sub(gen.SourceFS, SourceTemplatesDir)
	if err != nil {
		return stacktrace.New(err)
	}
	gen.renderer, err = NewRenderer(templatesFS, gen.funcMap)
	if err != nil {
		return err
	}
	posts, err := gen.ParsePosts()
	if err != nil {
		return err
	}
	gen.index, err = BuildIndex(posts, IndexConfig{
		PostsPerPage:   gen.Options.Posts,
		Years:          gen.Options.Years,
		IgnoreTags:     gen.Options.IgnoreTags,
		Transliterator: gen.Resolver.Transliterator,
	})
	if err != nil {
		return err
	}
	// The output is only cleared once the sources are known to be valid.
	if gen.Options.Clear {
		err := gen.fsys.RemoveAll(".")
		if err != nil {
			return stacktrace.New(err)
		}
	}
	gen.Logger.Debug("indexed",
		slog.Int("posts", len(gen.index.All)),
		slog.Int("listed", len(gen.index.Posts)),
		slog.Int("tags", len(gen.index.TagNames)),
		slog.Int("pages", len(gen.index.Pages)),
	)
	stages := []stage{
		{name: "posts", skip: gen.Options.SkipPosts, emit: gen.emitPosts},
		{name: "pages", skip: gen.Options.SkipPages, emit: gen.emitPageListings},
		{name: "tags", skip: gen.Options.SkipTags, emit: gen.emitTagListings},
		{name: "dates", emit: gen.emitDateListings},
		{name: "resources", skip: gen.Options.SkipResources, emit: func() (int, error) { return gen.emitResources(ctx) }},
		{name: "indexes", skip: gen.Options.SkipIndexes, emit: gen.emitIndexes},
		{name: "feeds", skip: gen.Options.SkipRSS, emit: gen.emitFeeds},
		{name: "misc", skip: gen.Options.SkipMisc, emit: gen.emitMisc},
		{name: "sitemap", skip: gen.Options.SkipSitemap, emit: gen.emitSitemap},
		{name: "routing", skip: gen.Options.SkipRouting, emit: gen.emitRouting},
		{name: "robots", skip: gen.Options.SkipRobots, emit: gen.emitRobots},
	}
	for _, stage := range stages {
		err := ctx.Err()
		if err != nil {
			return err
		}
		if stage.skip {
			gen.Logger.Debug("skipped", slog.String("stage", stage.name))
			continue
		}
		stageStartedAt := time.Now()
		count, err := stage.emit()
		if err != nil {
			return err
		}
		gen.Logger.Info("emitted",
			slog.String("stage", stage.name),
			slog.Int("count", count),
			slog.Duration("duration", time.Since(stageStartedAt)),
		)
	}
	gen.Logger.Info("generated",
		slog.Int("posts", len(gen.index.All)),
		slog.Duration("duration", time.Since(startedAt)),
	)
	return nil
}

// Index returns the content index of the last run, or nil if no run has
// indexed the posts yet.
func (gen *Generator) Index() *ContentIndex {
	return gen.index
}

// ParsePosts parses every *.md file in the posts directory of the source
// tree, in file name order. A missing posts directory yields no posts.
func (gen *Generator) ParsePosts() ([]*Post, error) {
	dirEntries, err := readDirIfExists(gen.SourceFS, SourcePostsDir)
	if err != nil {
		return nil, err
	}
	config := ParserConfig{
		Use24Hours:     gen.Options.Use24Hours,
		Transliterator: gen.Resolver.Transliterator,
	}
	var posts []*Post
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || path.Ext(name) != ".md" {
			continue
		}
		text, err := readFile(gen.SourceFS, path.Join(SourcePostsDir, name))
		if err != nil {
			return nil, err
		}
		post, err := ParsePost(name, text, config)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// readDirIfExists reads the named directory of fsys. A missing directory
// has no entries.
func readDirIfExists(fsys fs.FS, name string) ([]fs.DirEntry, error) {
	dirEntries, err := fs.ReadDir(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, stacktrace.New(err)
	}
	return dirEntries, nil
}

func readFile(fsys fs.FS, name string) (string, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", stacktrace.New(err)
	}
	return string(b), nil
}

// bodyHTML returns the post's body rendered to HTML. Each body is converted
// at most once per run.
func (gen *Generator) bodyHTML(post *Post) (template.HTML, error) {
	if body, ok := gen.bodies[post]; ok {
		return body, nil
	}
	var b bytes.Buffer
	err := gen.markdown.Convert([]byte(post.Content()), &b)
	if err != nil {
		return "", stacktrace.New(err)
	}
	body := template.HTML(b.String())
	if gen.bodies != nil {
		gen.bodies[post] = body
	}
	return body, nil
}

// render executes the named template into filePath.
func (gen *Generator) render(filePath, name string, data any) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
	}()
	err := gen.renderer.Render(buf, name, data)
	if err != nil {
		return err
	}
	return gen.writeFile(filePath, buf.Bytes())
}

func (gen *Generator) writeFile(filePath string, b []byte) error {
	return WriteFile(gen.fsys, filePath, bytes.NewReader(b))
}

// newFuncMap returns the template functions of the site: the base functions
// plus the ones bound to the generator.
func (gen *Generator) newFuncMap() map[string]any {
	funcMap := make(map[string]any, len(baseFuncMap)+16)
	for name, fn := range baseFuncMap {
		funcMap[name] = fn
	}
	resolver := gen.Resolver
	funcMap["markdownToHTML"] = func(s string) (template.HTML, error) {
		var b bytes.Buffer
		err := gen.markdown.Convert([]byte(s), &b)
		if err != nil {
			return "", err
		}
		return template.HTML(b.String()), nil
	}
	funcMap["markdownTextOnly"] = func(s string) string {
		return markdownTextOnly(gen.markdown.Parser(), []byte(s))
	}
	funcMap["body"] = gen.bodyHTML
	funcMap["slug"] = resolver.Slug
	funcMap["link"] = resolver.Link
	funcMap["resource"] = resolver.Resource
	funcMap["absURL"] = resolver.AbsoluteURL
	funcMap["postLink"] = resolver.PostLink
	funcMap["postDateLink"] = resolver.PostDateLink
	funcMap["tagLink"] = resolver.TagLink
	funcMap["tagPageLink"] = func(tag string, n int) string {
		return resolver.Link(resolver.TagPageDir(tag, n) + "/")
	}
	funcMap["pageLink"] = func(n int) string {
		return resolver.Link(resolver.PageDir(n) + "/")
	}
	dateDir := func(args ...any) (string, error) {
		if len(args) < 2 || len(args) > 3 {
			return "", errors.New("dateDir: expected year, month and optionally day")
		}
		nums := make([]int, 3)
		for i, arg := range args {
			n, err := toInt(arg)
			if err != nil {
				return "", err
			}
			nums[i] = n
		}
		return DateDir(nums[0], nums[1], nums[2]), nil
	}
	funcMap["dateDir"] = dateDir
	funcMap["dateLink"] = func(args ...any) (string, error) {
		dir, err := dateDir(args...)
		if err != nil {
			return "", err
		}
		return resolver.Link(dir + "/"), nil
	}
	return funcMap
}
