package mgen

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseDate(t *testing.T) {
	type TestTable struct {
		description string
		value       string
		use24Hours  bool
		wantDate    time.Time
	}

	tests := []TestTable{{
		description: "dotted",
		value:       "01.03.2020",
		wantDate:    time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
	}, {
		description: "slashed single digits",
		value:       "2/3/2021",
		wantDate:    time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC),
	}, {
		description: "24-hour time",
		value:       "2/3/2021, 13.45",
		use24Hours:  true,
		wantDate:    time.Date(2021, 3, 2, 13, 45, 0, 0, time.UTC),
	}, {
		description: "24-hour time with colon",
		value:       "2/3/2021, 09:05",
		use24Hours:  true,
		wantDate:    time.Date(2021, 3, 2, 9, 5, 0, 0, time.UTC),
	}, {
		description: "12-hour time",
		value:       "01.03.2020, 1.30 pm",
		wantDate:    time.Date(2020, 3, 1, 13, 30, 0, 0, time.UTC),
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			gotDate, err := ParseDate(tt.value, tt.use24Hours)
			if err != nil {
				t.Fatal(err)
			}
			if !gotDate.Equal(tt.wantDate) {
				t.Errorf("got %s, want %s", gotDate, tt.wantDate)
			}
		})
	}
}

func TestParseDateInvalid(t *testing.T) {
	for _, value := range []string{"", "2020-03-01", "32.01.2020", "01.13.2020", "01.03.2020, 25.00"} {
		_, err := ParseDate(value, true)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%q: expected *ParseError, got %#v", value, err)
		}
	}
}

func TestParsePost(t *testing.T) {
	type TestTable struct {
		description string
		text        string
		config      ParserConfig
		wantPost    *Post
	}

	tests := []TestTable{{
		description: "inline dialect",
		text:        "title: My First Post\ndate: 01.03.2020\ntags: tech, life\n\nHello world.\n",
		config:      ParserConfig{Use24Hours: true, Transliterator: UnidecodeTransliterator{}},
		wantPost: &Post{
			Title:      "My First Post",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Tags:       []string{"tech", "life"},
			Body:       []string{"", "Hello world.", ""},
			ID:         "My-First-Post",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}, {
		description: "inline dialect stops at the first unrecognized key",
		text:        "title: Notes\ndate: 01.03.2020\nNote: this is body text",
		config:      ParserConfig{Use24Hours: true},
		wantPost: &Post{
			Title:      "Notes",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Body:       []string{"Note: this is body text"},
			ID:         "Notes",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}, {
		description: "front matter dialect",
		text:        "title: Crème Brûlée\r\ndate: 2/3/2021, 13:45\r\nauthor: me\r\ntemplate: recipe.html\r\n---\r\nkey: not metadata\r\n",
		config:      ParserConfig{Use24Hours: true, Transliterator: UnidecodeTransliterator{}},
		wantPost: &Post{
			Title:      "Crème Brûlée",
			Date:       time.Date(2021, 3, 2, 13, 45, 0, 0, time.UTC),
			Body:       []string{"key: not metadata", ""},
			ID:         "Creme-Brulee",
			Attributes: map[string]string{"author": "me"},
			Template:   "recipe.html",
			SourceName: "first.md",
		},
	}, {
		description: "explicit id and duplicate tags",
		text:        "title: Hello\ndate: 01.03.2020\nid: hello-again\ntags: go,go, ,web\nbody",
		config:      ParserConfig{Use24Hours: true},
		wantPost: &Post{
			Title:      "Hello",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Tags:       []string{"go", "go", "web"},
			Body:       []string{"body"},
			ID:         "hello-again",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}, {
		description: "explicit id is used unchanged",
		text:        "title: Release\ndate: 01.03.2020\nid: v1.2\n\nNotes.",
		config:      ParserConfig{Use24Hours: true, Transliterator: UnidecodeTransliterator{}},
		wantPost: &Post{
			Title:      "Release",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Body:       []string{"", "Notes."},
			ID:         "v1.2",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}, {
		description: "thematic break after a blank line is body",
		text:        "title: Links\ndate: 01.03.2020\n\nhttps://example.com\n---\nfooter",
		config:      ParserConfig{Use24Hours: true},
		wantPost: &Post{
			Title:      "Links",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Body:       []string{"", "https://example.com", "---", "footer"},
			ID:         "Links",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}, {
		description: "URL line before a thematic break is body",
		text:        "title: Links\ndate: 01.03.2020\nhttps://example.com\n---\nfooter",
		config:      ParserConfig{Use24Hours: true},
		wantPost: &Post{
			Title:      "Links",
			Date:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			Body:       []string{"https://example.com", "---", "footer"},
			ID:         "Links",
			Template:   DefaultPostTemplate,
			SourceName: "first.md",
		},
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			gotPost, err := ParsePost("first.md", tt.text, tt.config)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.wantPost, gotPost); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestParsePostErrors(t *testing.T) {
	type TestTable struct {
		description string
		text        string
	}

	tests := []TestTable{{
		description: "missing title",
		text:        "date: 01.03.2020\n\nbody",
	}, {
		description: "missing date",
		text:        "title: Hello\n\nbody",
	}, {
		description: "missing body",
		text:        "title: Hello\ndate: 01.03.2020\n\n  \n",
	}, {
		description: "invalid date",
		text:        "title: Hello\ndate: yesterday\n\nbody",
	}, {
		description: "title without slug characters",
		text:        "title: ?!\ndate: 01.03.2020\n\nbody",
	}, {
		description: "front matter with an invalid date",
		text:        "title: Hello\ndate: soon\nauthor: me\n---\nbody",
	}, {
		description: "tag without slug characters",
		text:        "title: Hello\ndate: 01.03.2020\ntags: go, ?!\n\nbody",
	}, {
		description: "id with a slash",
		text:        "title: Hello\ndate: 01.03.2020\nid: a/b\n\nbody",
	}, {
		description: "id that escapes its directory",
		text:        "title: Hello\ndate: 01.03.2020\nid: ..\n\nbody",
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePost("broken.md", tt.text, ParserConfig{Use24Hours: true})
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %#v", err)
			}
			if parseErr.Source != "broken.md" {
				t.Errorf("got source %q, want %q", parseErr.Source, "broken.md")
			}
		})
	}
}
