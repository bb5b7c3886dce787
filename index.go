package mgen

import (
	"slices"
	"strconv"
	"strings"
)

// GroupKind identifies the kind of a grouping of posts.
type GroupKind int

const (
	GroupAll GroupKind = iota
	GroupTag
	GroupMonth
	GroupDay
)

// String implements fmt.Stringer.
func (kind GroupKind) String() string {
	switch kind {
	case GroupAll:
		return "all"
	case GroupTag:
		return "tag"
	case GroupMonth:
		return "month"
	case GroupDay:
		return "day"
	default:
		return "GroupKind(" + strconv.Itoa(int(kind)) + ")"
	}
}

// GroupKey identifies one grouping of posts. Listing templates receive it as
// their filters.
type GroupKey struct {
	Kind  GroupKind
	Tag   string
	Year  int
	Month int
	Day   int
}

// PageOfPosts is one fixed-size window of a grouping.
type PageOfPosts struct {
	// Number is the 1-based page number.
	Number int

	// Total is the number of pages in the grouping.
	Total int

	// Posts on the page.
	Posts []*Post
}

// ContentIndex is the in-memory model every emitter reads from. It is built
// once per run and never modified afterwards.
type ContentIndex struct {
	// All holds every parsed post in input order, including posts with an
	// ignored tag.
	All []*Post

	// Posts holds the posts without an ignored tag, newest first.
	Posts []*Post

	// Tags maps each tag to its posts, newest first.
	Tags map[string][]*Post

	// TagNames holds the tags in sorted order.
	TagNames []string

	// Dates maps year, month and day to the posts of that day, in input
	// order. Only populated buckets are present.
	Dates map[int]map[int]map[int][]*Post

	// Years holds the year filter in ascending order.
	Years []int

	// MonthsByPosts maps each year to its populated months in ascending
	// order.
	MonthsByPosts map[int][]int

	// Pages is the pagination of Posts.
	Pages []PageOfPosts

	// TagPages maps each tag to the pagination of its posts.
	TagPages map[string][]PageOfPosts
}

// IndexConfig holds the parameters needed to build a ContentIndex.
type IndexConfig struct {
	// PostsPerPage is the page size of the global and tag listings.
	PostsPerPage int

	// Years is the year filter. Every post that is not ignored must fall in
	// one of these years.
	Years []int

	// IgnoreTags excludes posts carrying any of these tags from Posts and
	// Dates.
	IgnoreTags []string

	// Transliterator slugs tags into directory names. Two tags may not share
	// a directory.
	Transliterator Transliterator
}

// ConfigurationError is returned when the configuration is invalid or the
// posts do not satisfy it.
type ConfigurationError struct {
	// Reason describes what is wrong.
	Reason string
}

// Error implements the error interface.
func (configErr *ConfigurationError) Error() string {
	return "configuration error: " + configErr.Reason
}

// comparePosts orders posts newest first, falling back to the source name so
// that posts sharing a timestamp always come out in the same order.
func comparePosts(a, b *Post) int {
	if c := b.Date.Compare(a.Date); c != 0 {
		return c
	}
	return strings.Compare(a.SourceName, b.SourceName)
}

// BuildIndex builds the content index of a set of posts.
func BuildIndex(posts []*Post, config IndexConfig) (*ContentIndex, error) {
	if config.PostsPerPage < 1 {
		return nil, &ConfigurationError{Reason: "posts per page must be at least 1, got " + strconv.Itoa(config.PostsPerPage)}
	}
	if len(config.Years) == 0 {
		return nil, &ConfigurationError{Reason: "year filter is empty"}
	}
	years := slices.Clone(config.Years)
	slices.Sort(years)
	years = slices.Compact(years)
	index := &ContentIndex{
		All:           posts,
		Posts:         make([]*Post, 0, len(posts)),
		Tags:          make(map[string][]*Post),
		Dates:         make(map[int]map[int]map[int][]*Post),
		Years:         years,
		MonthsByPosts: make(map[int][]int),
		TagPages:      make(map[string][]PageOfPosts),
	}
	for _, post := range posts {
		for i, tag := range post.Tags {
			if slices.Contains(post.Tags[:i], tag) {
				continue
			}
			index.Tags[tag] = append(index.Tags[tag], post)
		}
		if isIgnored(post, config.IgnoreTags) {
			continue
		}
		index.Posts = append(index.Posts, post)
		year, month, day := post.Date.Year(), int(post.Date.Month()), post.Date.Day()
		if _, ok := slices.BinarySearch(years, year); !ok {
			return nil, &ConfigurationError{
				Reason: post.SourceName + ": year " + strconv.Itoa(year) + " is outside the year filter " + joinInts(years, ","),
			}
		}
		if index.Dates[year] == nil {
			index.Dates[year] = make(map[int]map[int][]*Post)
		}
		if index.Dates[year][month] == nil {
			index.Dates[year][month] = make(map[int][]*Post)
		}
		index.Dates[year][month][day] = append(index.Dates[year][month][day], post)
	}
	slices.SortStableFunc(index.Posts, comparePosts)
	for tag, tagPosts := range index.Tags {
		slices.SortStableFunc(tagPosts, comparePosts)
		index.TagNames = append(index.TagNames, tag)
		index.TagPages[tag] = Paginate(tagPosts, config.PostsPerPage)
	}
	slices.Sort(index.TagNames)
	tagsBySlug := make(map[string]string, len(index.TagNames))
	for _, tag := range index.TagNames {
		slug := Slug(tag, config.Transliterator)
		if slug == "" {
			return nil, &ConfigurationError{Reason: "tag " + strconv.Quote(tag) + " produces an empty slug"}
		}
		if other, ok := tagsBySlug[slug]; ok {
			return nil, &ConfigurationError{
				Reason: "tags " + strconv.Quote(other) + " and " + strconv.Quote(tag) + " share the directory tag/" + slug,
			}
		}
		tagsBySlug[slug] = tag
	}
	for _, year := range years {
		for month := 1; month <= 12; month++ {
			if len(index.Dates[year][month]) > 0 {
				index.MonthsByPosts[year] = append(index.MonthsByPosts[year], month)
			}
		}
	}
	index.Pages = Paginate(index.Posts, config.PostsPerPage)
	return index, nil
}

// Paginate splits posts into consecutive pages of at most size posts. Page k
// holds posts[(k-1)*size : k*size]. No posts yields no pages.
func Paginate(posts []*Post, size int) []PageOfPosts {
	if size < 1 || len(posts) == 0 {
		return nil
	}
	total := (len(posts) + size - 1) / size
	pages := make([]PageOfPosts, 0, total)
	for start := 0; start < len(posts); start += size {
		end := min(start+size, len(posts))
		pages = append(pages, PageOfPosts{
			Number: len(pages) + 1,
			Total:  total,
			Posts:  posts[start:end:end],
		})
	}
	return pages
}

// MonthPosts returns the posts of a month, day by day in ascending order.
func (index *ContentIndex) MonthPosts(year, month int) []*Post {
	var posts []*Post
	for day := 1; day <= 31; day++ {
		posts = append(posts, index.Dates[year][month][day]...)
	}
	return posts
}

// Days returns the populated days of a month in ascending order.
func (index *ContentIndex) Days(year, month int) []int {
	var days []int
	for day := 1; day <= 31; day++ {
		if len(index.Dates[year][month][day]) > 0 {
			days = append(days, day)
		}
	}
	return days
}

func isIgnored(post *Post, ignoreTags []string) bool {
	for _, tag := range ignoreTags {
		if post.HasTag(tag) {
			return true
		}
	}
	return false
}

func joinInts(nums []int, sep string) string {
	s := make([]string, len(nums))
	for i, num := range nums {
		s[i] = strconv.Itoa(num)
	}
	return strings.Join(s, sep)
}
