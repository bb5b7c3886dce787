package mgen

import (
	"bytes"
	"encoding/xml"
	"path"
	"strconv"
	"time"

	"github.com/bokwoon95/mgen/stacktrace"
	"github.com/google/uuid"
)

// RSS is the root element of an RSS 2.0 feed.
type RSS struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel RSSChannel `xml:"channel"`
}

// RSSChannel is the channel of an RSS feed.
type RSSChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []RSSItem `xml:"item"`
}

// RSSItem is one post of an RSS feed.
type RSSItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	GUID        RSSGUID  `xml:"guid"`
	Categories  []string `xml:"category"`
}

// RSSGUID is the unique identifier of an RSS item.
type RSSGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// URLSet is the root element of a sitemap.
type URLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapURL is one location of a sitemap.
type SitemapURL struct {
	Loc string `xml:"loc"`
}

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// emitFeeds writes the global feed and one feed per tag.
func (gen *Generator) emitFeeds() (int, error) {
	posts := gen.index.Posts
	if len(posts) > gen.Options.Items {
		posts = posts[:gen.Options.Items]
	}
	title := gen.Site.Title
	err := gen.writeFeed(path.Join(PostsDir, "feed.rss"),
		"Posts of "+title,
		"Last "+strconv.Itoa(gen.Options.Items)+" posts of "+title,
		posts,
	)
	if err != nil {
		return 0, err
	}
	count := 1
	for _, tag := range gen.index.TagNames {
		tagPosts := gen.index.Tags[tag]
		err := gen.writeFeed(path.Join(gen.Resolver.TagDir(tag), "feed.rss"),
			"Posts of "+title+" with tag "+tag,
			"Last "+strconv.Itoa(len(tagPosts))+" posts of "+title+" with tag "+tag,
			tagPosts,
		)
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (gen *Generator) writeFeed(filePath, title, description string, posts []*Post) error {
	feed := RSS{
		Version: "2.0",
		Channel: RSSChannel{
			Title:       title,
			Link:        gen.Resolver.URL + gen.Resolver.Webroot,
			Description: description,
			Language:    gen.Site.Lang,
			Items:       make([]RSSItem, 0, len(posts)),
		},
	}
	if len(posts) > 0 {
		feed.Channel.LastBuildDate = posts[0].Date.Format(time.RFC1123Z)
	}
	for _, post := range posts {
		body, err := gen.bodyHTML(post)
		if err != nil {
			return err
		}
		content := string(body)
		if gen.Options.FeedExcerpt > 0 {
			content = Cut(content, gen.Options.FeedExcerpt)
		}
		link := gen.Resolver.PostURL(post)
		feed.Channel.Items = append(feed.Channel.Items, RSSItem{
			Title:       post.Title,
			Link:        link,
			Description: content,
			PubDate:     post.Date.Format(time.RFC1123Z),
			GUID: RSSGUID{
				Value: uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String(),
			},
			Categories: post.Tags,
		})
	}
	return gen.writeXML(filePath, &feed)
}

// emitSitemap writes sitemap.xml.
func (gen *Generator) emitSitemap() (int, error) {
	var locs []string
	for _, post := range gen.index.All {
		locs = append(locs, gen.Resolver.PostURL(post))
	}
	var paths []string
	for _, year := range gen.index.Years {
		for _, month := range gen.index.MonthsByPosts[year] {
			for _, day := range gen.index.Days(year, month) {
				paths = append(paths, DateDir(year, month, day)+"/")
			}
		}
	}
	for _, page := range gen.index.Pages {
		paths = append(paths, gen.Resolver.PageDir(page.Number)+"/")
	}
	for _, tag := range gen.index.TagNames {
		paths = append(paths, gen.Resolver.TagDir(tag)+"/")
	}
	for _, name := range gen.miscPages {
		paths = append(paths, name+"/")
	}
	for _, p := range paths {
		locs = append(locs, gen.Resolver.AbsoluteURL(p))
	}
	urlset := URLSet{
		XMLNS: sitemapNamespace,
		URLs:  make([]SitemapURL, len(locs)),
	}
	for i, loc := range locs {
		urlset.URLs[i] = SitemapURL{Loc: loc}
	}
	err := gen.writeXML("sitemap.xml", &urlset)
	if err != nil {
		return 0, err
	}
	return len(urlset.URLs), nil
}

func (gen *Generator) writeXML(filePath string, v any) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
	}()
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(buf)
	encoder.Indent("", "  ")
	err := encoder.Encode(v)
	if err != nil {
		return stacktrace.New(err)
	}
	buf.WriteByte('\n')
	return gen.writeFile(filePath, buf.Bytes())
}
