package mgen

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
)

// Fixed top-level directories of the output tree.
const (
	PostsDir     = "post"
	PagesDir     = "page"
	TagsDir      = "tag"
	ResourcesDir = "res"
)

// Transliterator converts text into the form used inside output paths and
// links.
type Transliterator interface {
	Transliterate(s string) string
}

// UnidecodeTransliterator replaces non-ASCII characters with their nearest
// ASCII equivalent and removes quote characters.
type UnidecodeTransliterator struct{}

var quoteReplacer = strings.NewReplacer("'", "", "\"", "")

// Transliterate implements Transliterator.
func (UnidecodeTransliterator) Transliterate(s string) string {
	return quoteReplacer.Replace(unidecode.Unidecode(s))
}

// PassThrough leaves text unchanged.
type PassThrough struct{}

// Transliterate implements Transliterator.
func (PassThrough) Transliterate(s string) string { return s }

// NewTransliterator returns the transliteration strategy for the given
// setting.
func NewTransliterator(enabled bool) Transliterator {
	if enabled {
		return UnidecodeTransliterator{}
	}
	return PassThrough{}
}

// slugSeparators are the characters that become hyphens in a slug.
const slugSeparators = " ,.!?;:/-"

// Slug derives the URL-safe identifier of a title. Separator characters are
// replaced by a single hyphen (runs collapse, leading and trailing hyphens are
// dropped) and the result is passed through the transliterator. Case is
// preserved and Slug(Slug(s)) == Slug(s).
func Slug(title string, transliterator Transliterator) string {
	if transliterator == nil {
		transliterator = PassThrough{}
	}
	// Transliteration runs first because unidecode emits spaces between
	// transliterated words, which must become separators too.
	s := transliterator.Transliterate(title)
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, char := range s {
		if strings.ContainsRune(slugSeparators, char) || char == '\t' || char == '\n' {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(char)
	}
	return b.String()
}

// ResolverConfig holds the parameters needed to construct a Resolver.
type ResolverConfig struct {
	// URL is the public base URL of the site, excluding the webroot. A bare
	// host such as "localhost" is treated as "http://localhost".
	URL string

	// Webroot is the path prefix the site is deployed under.
	Webroot string

	// Transliterator is applied to slugs and non-ASCII links.
	Transliterator Transliterator
}

// Resolver maps posts and groupings onto output paths and public URLs.
type Resolver struct {
	// URL is the normalized public base URL, without a trailing slash.
	URL string

	// Webroot is the normalized webroot, always starting and ending with a
	// slash.
	Webroot string

	// Transliterator is applied to slugs and non-ASCII links.
	Transliterator Transliterator
}

// NewResolver constructs a new Resolver.
func NewResolver(config ResolverConfig) *Resolver {
	baseURL := strings.TrimSuffix(strings.TrimSpace(config.URL), "/")
	if baseURL == "" {
		baseURL = "localhost"
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	webroot := path.Clean("/" + strings.TrimSpace(config.Webroot))
	if webroot != "/" {
		webroot += "/"
	}
	transliterator := config.Transliterator
	if transliterator == nil {
		transliterator = PassThrough{}
	}
	return &Resolver{
		URL:            baseURL,
		Webroot:        webroot,
		Transliterator: transliterator,
	}
}

// Slug slugs s with the resolver's transliterator.
func (r *Resolver) Slug(s string) string {
	return Slug(s, r.Transliterator)
}

// PostIDDir returns the "by id" directory of a post. The id is already a
// slug unless it was given explicitly, in which case it is used unchanged.
func (r *Resolver) PostIDDir(post *Post) string {
	return PostsDir + "/id/" + post.ID
}

// PostDateDir returns the "by date" directory of a post.
func (r *Resolver) PostDateDir(post *Post) string {
	return DateDir(post.Date.Year(), int(post.Date.Month()), post.Date.Day()) + "/" + post.ID
}

// PageDir returns the directory of page n of the global listing.
func (r *Resolver) PageDir(n int) string {
	return PagesDir + "/" + strconv.Itoa(n)
}

// TagDir returns the root directory of a tag.
func (r *Resolver) TagDir(tag string) string {
	return TagsDir + "/" + r.Slug(tag)
}

// TagPageDir returns the directory of page n of a tag listing.
func (r *Resolver) TagPageDir(tag string, n int) string {
	return r.TagDir(tag) + "/" + strconv.Itoa(n)
}

// DateDir returns the directory of a month listing, or of a day listing if
// day is positive. Numbers are not zero padded.
func DateDir(year, month, day int) string {
	dir := PostsDir + "/date/" + strconv.Itoa(year) + "/" + strconv.Itoa(month)
	if day > 0 {
		dir += "/" + strconv.Itoa(day)
	}
	return dir
}

// DateDir is the method form of DateDir, for templates.
func (r *Resolver) DateDir(year, month, day int) string {
	return DateDir(year, month, day)
}

// URLJoin joins path elements with slashes and percent-encodes every segment.
// A leading slash on the first element and a trailing slash on the last
// element are kept.
func URLJoin(elems ...string) string {
	if len(elems) == 0 {
		return ""
	}
	joined := path.Join(elems...)
	if joined == "." {
		joined = ""
	}
	leading := strings.HasPrefix(joined, "/")
	trailing := strings.HasSuffix(elems[len(elems)-1], "/") && joined != "/"
	segments := strings.Split(strings.Trim(joined, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	s := strings.Join(segments, "/")
	if leading {
		s = "/" + s
	}
	if trailing && !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return s
}

// Link returns the webroot-relative link of an output path. Non-ASCII paths
// are transliterated first.
func (r *Resolver) Link(p string) string {
	if !isASCII(p) {
		p = r.Transliterator.Transliterate(p)
	}
	return r.webrootLink(p)
}

// webrootLink percent-encodes p below the webroot without transliterating it.
func (r *Resolver) webrootLink(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return r.Webroot
	}
	return URLJoin(r.Webroot, p)
}

// Resource returns the link of a file in the resources directory.
func (r *Resolver) Resource(p string) string {
	return URLJoin(r.Webroot, ResourcesDir, strings.TrimPrefix(p, "/"))
}

// AbsoluteURL returns the public URL of an output path.
func (r *Resolver) AbsoluteURL(p string) string {
	return r.URL + r.Link(p)
}

// PostLink returns the canonical ("by id") link of a post. Post paths are
// not transliterated, so an explicit non-ASCII id links to the directory it
// was written to.
func (r *Resolver) PostLink(post *Post) string {
	return r.webrootLink(r.PostIDDir(post) + "/")
}

// PostDateLink returns the "by date" link of a post.
func (r *Resolver) PostDateLink(post *Post) string {
	return r.webrootLink(r.PostDateDir(post) + "/")
}

// PostURL returns the public URL of a post's canonical page.
func (r *Resolver) PostURL(post *Post) string {
	return r.URL + r.PostLink(post)
}

// TagLink returns the link of a tag's landing page.
func (r *Resolver) TagLink(tag string) string {
	return r.Link(r.TagDir(tag) + "/")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
