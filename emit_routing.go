package mgen

import (
	"bytes"
	"path"
	"strings"

	"github.com/bokwoon95/mgen/stacktrace"
	"gopkg.in/yaml.v3"
)

// RoutingHandler is one rule of the routing descriptor. A rule serves either
// a single static file (StaticFiles, with Upload matching the uploaded
// files) or a whole directory (StaticDir).
type RoutingHandler struct {
	URL         string `yaml:"url"`
	StaticFiles string `yaml:"static_files,omitempty"`
	StaticDir   string `yaml:"static_dir,omitempty"`
	Upload      string `yaml:"upload,omitempty"`
}

// RoutingDescriptor maps the URL space of the site onto the files of the
// output tree for static hosting platforms.
type RoutingDescriptor struct {
	Handlers []RoutingHandler `yaml:"handlers"`
}

// RoutingDescriptor returns the routing descriptor of the site.
func (gen *Generator) RoutingDescriptor() RoutingDescriptor {
	webroot := gen.Resolver.Webroot
	join := func(elems ...string) string {
		return path.Join(append([]string{webroot}, elems...)...)
	}
	// file serves a single file. The regular expression group of pattern
	// maps onto \1 in target.
	file := func(pattern, target, upload string) RoutingHandler {
		return RoutingHandler{
			URL:         join(pattern),
			StaticFiles: strings.TrimPrefix(join(target), "/"),
			Upload:      upload,
		}
	}
	handlers := []RoutingHandler{
		file("favicon.ico", "favicon.ico", ".*"),
		file("404.html", "404/index.html", ".*"),
		{URL: join(ResourcesDir), StaticDir: strings.TrimPrefix(join(ResourcesDir), "/")},
		file("", "index.html", ".*"),
		file(PostsDir, PostsDir+"/index.html", ".*"),
		file(PostsDir+"/id/(.*?)", PostsDir+`/id/\1/index.html`, PostsDir+"/id/(.*?)/index.html"),
		file(PostsDir+"/date/(.*?)", PostsDir+`/date/\1/index.html`, PostsDir+"/date/(.*?)/index.html"),
		file(PagesDir+"/(.*?)", PagesDir+`/\1/index.html`, PagesDir+"/(.*?)/index.html"),
		file(TagsDir+"/(.*?)", TagsDir+`/\1/1/index.html`, TagsDir+"/(.*?)/1/index.html"),
		file(PostsDir+"/feed.rss", PostsDir+"/feed.rss", ".*"),
		{URL: "/download", StaticDir: "download"},
	}
	for _, name := range gen.miscPages {
		handlers = append(handlers, file(name, name+"/index.html", ".*"))
	}
	return RoutingDescriptor{Handlers: handlers}
}

// emitRouting writes the routing descriptor to site.yaml.
func (gen *Generator) emitRouting() (int, error) {
	descriptor := gen.RoutingDescriptor()
	var b bytes.Buffer
	encoder := yaml.NewEncoder(&b)
	encoder.SetIndent(2)
	err := encoder.Encode(&descriptor)
	if err != nil {
		return 0, stacktrace.New(err)
	}
	err = encoder.Close()
	if err != nil {
		return 0, stacktrace.New(err)
	}
	err = gen.writeFile("site.yaml", b.Bytes())
	if err != nil {
		return 0, err
	}
	return len(descriptor.Handlers), nil
}

// emitRobots writes robots.txt.
func (gen *Generator) emitRobots() (int, error) {
	var b strings.Builder
	b.WriteString("user-agent: *\n")
	for _, disallowed := range gen.Options.RobotsDisallow {
		b.WriteString("disallow: " + disallowed + "\n")
	}
	err := gen.writeFile("robots.txt", []byte(b.String()))
	if err != nil {
		return 0, err
	}
	return 1, nil
}
