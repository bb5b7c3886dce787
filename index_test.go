package mgen

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestPost(sourceName string, date time.Time, tags ...string) *Post {
	return &Post{
		Title:      sourceName,
		Date:       date,
		Tags:       tags,
		Body:       []string{"body of " + sourceName},
		ID:         sourceName,
		Template:   DefaultPostTemplate,
		SourceName: sourceName,
	}
}

// sourceNames maps posts to their source names, which is all a test needs to
// compare orderings.
func sourceNames(posts []*Post) []string {
	names := make([]string, len(posts))
	for i, post := range posts {
		names[i] = post.SourceName
	}
	return names
}

func TestBuildIndex(t *testing.T) {
	day := func(month, day int) time.Time {
		return time.Date(2020, time.Month(month), day, 12, 0, 0, 0, time.UTC)
	}
	posts := []*Post{
		newTestPost("a", day(3, 1), "tech", "life"),
		newTestPost("b", day(3, 5), "tech"),
		newTestPost("c", day(1, 20)),
		newTestPost("e", day(3, 5), "life", "life"),
		newTestPost("d", day(3, 5), "draft"),
	}
	index, err := BuildIndex(posts, IndexConfig{
		PostsPerPage: 2,
		Years:        []int{2020, 2019, 2020},
		IgnoreTags:   []string{"draft"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "e", "d"}, sourceNames(index.All)); diff != "" {
		t.Errorf("All: %s", diff)
	}
	// Posts sharing a timestamp are ordered by source name.
	if diff := cmp.Diff([]string{"b", "e", "a", "c"}, sourceNames(index.Posts)); diff != "" {
		t.Errorf("Posts: %s", diff)
	}
	if diff := cmp.Diff([]string{"draft", "life", "tech"}, index.TagNames); diff != "" {
		t.Errorf("TagNames: %s", diff)
	}
	// A post is listed once per tag even if it carries the tag twice.
	if diff := cmp.Diff([]string{"e", "a"}, sourceNames(index.Tags["life"])); diff != "" {
		t.Errorf("Tags[life]: %s", diff)
	}
	// Ignored posts still get their own tag listing.
	if diff := cmp.Diff([]string{"d"}, sourceNames(index.Tags["draft"])); diff != "" {
		t.Errorf("Tags[draft]: %s", diff)
	}
	if diff := cmp.Diff([]int{2019, 2020}, index.Years); diff != "" {
		t.Errorf("Years: %s", diff)
	}
	if diff := cmp.Diff(map[int][]int{2020: {1, 3}}, index.MonthsByPosts); diff != "" {
		t.Errorf("MonthsByPosts: %s", diff)
	}
	if diff := cmp.Diff([]int{1, 5}, index.Days(2020, 3)); diff != "" {
		t.Errorf("Days: %s", diff)
	}
	// Day buckets keep input order, ignored posts are left out.
	if diff := cmp.Diff([]string{"b", "e"}, sourceNames(index.Dates[2020][3][5])); diff != "" {
		t.Errorf("Dates[2020][3][5]: %s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "e"}, sourceNames(index.MonthPosts(2020, 3))); diff != "" {
		t.Errorf("MonthPosts: %s", diff)
	}
	if len(index.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(index.Pages))
	}
	if diff := cmp.Diff([]string{"a", "c"}, sourceNames(index.Pages[1].Posts)); diff != "" {
		t.Errorf("Pages[1]: %s", diff)
	}
	if page := index.Pages[1]; page.Number != 2 || page.Total != 2 {
		t.Errorf("Pages[1]: got page %d of %d, want page 2 of 2", page.Number, page.Total)
	}
	if len(index.TagPages["tech"]) != 1 {
		t.Errorf("got %d tech pages, want 1", len(index.TagPages["tech"]))
	}
}

func TestBuildIndexEmpty(t *testing.T) {
	index, err := BuildIndex(nil, IndexConfig{PostsPerPage: 10, Years: []int{2020}})
	if err != nil {
		t.Fatal(err)
	}
	if len(index.Posts) != 0 || len(index.Pages) != 0 || len(index.TagNames) != 0 {
		t.Errorf("expected an empty index, got %d posts, %d pages and %d tags", len(index.Posts), len(index.Pages), len(index.TagNames))
	}
}

func TestBuildIndexConfigurationErrors(t *testing.T) {
	type TestTable struct {
		description string
		posts       []*Post
		config      IndexConfig
	}

	tests := []TestTable{{
		description: "zero page size",
		config:      IndexConfig{PostsPerPage: 0, Years: []int{2020}},
	}, {
		description: "empty year filter",
		config:      IndexConfig{PostsPerPage: 10},
	}, {
		description: "post outside the year filter",
		posts:       []*Post{newTestPost("a", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))},
		config:      IndexConfig{PostsPerPage: 10, Years: []int{2020}},
	}, {
		description: "tags sharing a slug",
		posts: []*Post{
			newTestPost("a", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "go lang"),
			newTestPost("b", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), "go-lang"),
		},
		config: IndexConfig{PostsPerPage: 10, Years: []int{2020}},
	}, {
		description: "tags sharing a transliterated slug",
		posts: []*Post{
			newTestPost("a", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "café"),
			newTestPost("b", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), "cafe"),
		},
		config: IndexConfig{PostsPerPage: 10, Years: []int{2020}, Transliterator: UnidecodeTransliterator{}},
	}, {
		description: "tag with an empty slug",
		posts:       []*Post{newTestPost("a", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "?!")},
		config:      IndexConfig{PostsPerPage: 10, Years: []int{2020}},
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			_, err := BuildIndex(tt.posts, tt.config)
			var configErr *ConfigurationError
			if !errors.As(err, &configErr) {
				t.Fatalf("expected *ConfigurationError, got %#v", err)
			}
		})
	}
}

func TestBuildIndexIgnoredPostOutsideYears(t *testing.T) {
	posts := []*Post{newTestPost("a", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), "draft")}
	index, err := BuildIndex(posts, IndexConfig{PostsPerPage: 10, Years: []int{2020}, IgnoreTags: []string{"draft"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(index.Posts) != 0 {
		t.Errorf("expected no listed posts, got %d", len(index.Posts))
	}
}

func TestPaginate(t *testing.T) {
	var posts []*Post
	for i := 0; i < 7; i++ {
		posts = append(posts, newTestPost(string(rune('a'+i)), time.Date(2020, 1, i+1, 0, 0, 0, 0, time.UTC)))
	}
	type TestTable struct {
		description string
		size        int
		wantSizes   []int
	}

	tests := []TestTable{
		{"exact multiple", 7, []int{7}},
		{"remainder", 3, []int{3, 3, 1}},
		{"size one", 1, []int{1, 1, 1, 1, 1, 1, 1}},
		{"oversized", 100, []int{7}},
	}

	for _, tt := range tests {
		pages := Paginate(posts, tt.size)
		gotSizes := make([]int, len(pages))
		for i, page := range pages {
			gotSizes[i] = len(page.Posts)
			if page.Number != i+1 || page.Total != len(tt.wantSizes) {
				t.Errorf("%s: page %d: got page %d of %d", tt.description, i, page.Number, page.Total)
			}
			if page.Posts[0] != posts[i*tt.size] {
				t.Errorf("%s: page %d starts with %s, want %s", tt.description, i, page.Posts[0].SourceName, posts[i*tt.size].SourceName)
			}
		}
		if diff := cmp.Diff(tt.wantSizes, gotSizes); diff != "" {
			t.Errorf("%s: %s", tt.description, diff)
		}
	}
	if pages := Paginate(nil, 10); pages != nil {
		t.Errorf("expected no pages for no posts, got %d", len(pages))
	}
}
