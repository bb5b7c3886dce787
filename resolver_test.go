package mgen

import (
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	type TestTable struct {
		title          string
		transliterator Transliterator
		wantSlug       string
	}

	tests := []TestTable{
		{"My First Post", PassThrough{}, "My-First-Post"},
		{"  Hello,  World! ", PassThrough{}, "Hello-World"},
		{"a/b:c;d?e", PassThrough{}, "a-b-c-d-e"},
		{"--already-slugged--", PassThrough{}, "already-slugged"},
		{"Don't Stop", PassThrough{}, "Don't-Stop"},
		{"Don't Stop", UnidecodeTransliterator{}, "Dont-Stop"},
		{"Crème Brûlée", UnidecodeTransliterator{}, "Creme-Brulee"},
		{"Crème Brûlée", PassThrough{}, "Crème-Brûlée"},
		{"", nil, ""},
	}

	for _, tt := range tests {
		gotSlug := Slug(tt.title, tt.transliterator)
		if gotSlug != tt.wantSlug {
			t.Errorf("Slug(%q): got %q, want %q", tt.title, gotSlug, tt.wantSlug)
		}
		if again := Slug(gotSlug, tt.transliterator); again != gotSlug {
			t.Errorf("Slug(%q) is not idempotent: %q then %q", tt.title, gotSlug, again)
		}
	}
}

func TestNewResolver(t *testing.T) {
	type TestTable struct {
		description string
		config      ResolverConfig
		wantURL     string
		wantWebroot string
	}

	tests := []TestTable{{
		description: "defaults",
		config:      ResolverConfig{},
		wantURL:     "http://localhost",
		wantWebroot: "/",
	}, {
		description: "bare host with trailing slash",
		config:      ResolverConfig{URL: "example.com/", Webroot: "blog"},
		wantURL:     "http://example.com",
		wantWebroot: "/blog/",
	}, {
		description: "scheme is kept",
		config:      ResolverConfig{URL: "https://example.com", Webroot: "/a/b/"},
		wantURL:     "https://example.com",
		wantWebroot: "/a/b/",
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			resolver := NewResolver(tt.config)
			if resolver.URL != tt.wantURL {
				t.Errorf("URL: got %q, want %q", resolver.URL, tt.wantURL)
			}
			if resolver.Webroot != tt.wantWebroot {
				t.Errorf("Webroot: got %q, want %q", resolver.Webroot, tt.wantWebroot)
			}
		})
	}
}

func TestResolverPaths(t *testing.T) {
	resolver := NewResolver(ResolverConfig{
		URL:            "https://example.com",
		Webroot:        "/blog/",
		Transliterator: UnidecodeTransliterator{},
	})
	post := &Post{
		ID:   "v1.2",
		Date: time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	// Explicit ids may be non-ASCII and are linked without transliteration.
	cafePost := &Post{
		ID:   "café",
		Date: time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	type TestTable struct {
		description string
		got         string
		want        string
	}

	tests := []TestTable{
		{"PostIDDir", resolver.PostIDDir(post), "post/id/v1.2"},
		{"PostDateDir", resolver.PostDateDir(post), "post/date/2020/3/1/v1.2"},
		{"PostIDDir non-ASCII", resolver.PostIDDir(cafePost), "post/id/café"},
		{"PageDir", resolver.PageDir(2), "page/2"},
		{"TagDir", resolver.TagDir("Go Lang"), "tag/Go-Lang"},
		{"TagPageDir", resolver.TagPageDir("Go Lang", 3), "tag/Go-Lang/3"},
		{"DateDir month", DateDir(2020, 3, 0), "post/date/2020/3"},
		{"DateDir day", DateDir(2020, 12, 31), "post/date/2020/12/31"},
		{"Link root", resolver.Link(""), "/blog/"},
		{"Link dir", resolver.Link("page/1/"), "/blog/page/1/"},
		{"Link file", resolver.Link("/post/feed.rss"), "/blog/post/feed.rss"},
		{"Link non-ASCII", resolver.Link("tag/café/"), "/blog/tag/cafe/"},
		{"Resource", resolver.Resource("css/site.css"), "/blog/res/css/site.css"},
		{"AbsoluteURL", resolver.AbsoluteURL("sitemap.xml"), "https://example.com/blog/sitemap.xml"},
		{"PostLink", resolver.PostLink(post), "/blog/post/id/v1.2/"},
		{"PostLink non-ASCII", resolver.PostLink(cafePost), "/blog/post/id/caf%C3%A9/"},
		{"PostDateLink", resolver.PostDateLink(post), "/blog/post/date/2020/3/1/v1.2/"},
		{"PostURL", resolver.PostURL(post), "https://example.com/blog/post/id/v1.2/"},
		{"TagLink", resolver.TagLink("life"), "/blog/tag/life/"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.description, tt.got, tt.want)
		}
	}
}

func TestURLJoin(t *testing.T) {
	type TestTable struct {
		elems []string
		want  string
	}

	tests := []TestTable{
		{nil, ""},
		{[]string{"/"}, "/"},
		{[]string{"/", "tag", "a b/"}, "/tag/a%20b/"},
		{[]string{"post", "id", "x"}, "post/id/x"},
		{[]string{"/blog/", "res", "a?b.css"}, "/blog/res/a%3Fb.css"},
	}

	for _, tt := range tests {
		got := URLJoin(tt.elems...)
		if got != tt.want {
			t.Errorf("URLJoin(%q): got %q, want %q", tt.elems, got, tt.want)
		}
	}
}
