package mgen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarkdown(t *testing.T) {
	type TestTable struct {
		description  string
		markdown     string
		wantContains []string
	}

	tests := []TestTable{{
		description:  "heading and paragraph",
		markdown:     "# Hello\n\nSome *text*.",
		wantContains: []string{"<h1>Hello</h1>", "<p>Some <em>text</em>.</p>"},
	}, {
		description:  "highlighted code",
		markdown:     "```go\nfmt.Println(\"hi\")\n```",
		wantContains: []string{"<pre", "Println"},
	}, {
		description:  "unknown language is escaped",
		markdown:     "```\n<b>bold</b>\n```",
		wantContains: []string{"<pre><code>&lt;b&gt;bold&lt;/b&gt;\n</code></pre>"},
	}, {
		description:  "math",
		markdown:     "```math\nx^2\n```",
		wantContains: []string{"<math"},
	}, {
		description:  "raw HTML is kept",
		markdown:     "<div class=\"note\">hi</div>",
		wantContains: []string{"<div class=\"note\">hi</div>"},
	}}

	markdown := NewMarkdown("")
	for _, tt := range tests {
		var b bytes.Buffer
		err := markdown.Convert([]byte(tt.markdown), &b)
		if err != nil {
			t.Fatalf("%s: %v", tt.description, err)
		}
		for _, want := range tt.wantContains {
			if !strings.Contains(b.String(), want) {
				t.Errorf("%s: expected output to contain %q, got %q", tt.description, want, b.String())
			}
		}
	}
}

func TestMarkdownTextOnly(t *testing.T) {
	markdown := NewMarkdown("")
	got := markdownTextOnly(markdown.Parser(), []byte("# Title\n\nSome **bold** text.\n\n![alt](a.png)\n\n```\ncode\n```\n\n<div>raw</div>\n"))
	want := "Title Some bold text."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCut(t *testing.T) {
	type TestTable struct {
		description string
		html        string
		length      int
		want        string
	}

	tests := []TestTable{{
		description: "short enough",
		html:        "<p>Hello</p>",
		length:      100,
		want:        "<p>Hello</p>",
	}, {
		description: "cut at a word boundary and close the paragraph",
		html:        "<p>Hello world, this is long.</p>",
		length:      20,
		want:        "<p>Hello world, this</p>",
	}, {
		description: "trailing punctuation is dropped",
		html:        "<p>One. Two. Three.</p>",
		length:      12,
		want:        "<p>One. Two</p>",
	}, {
		description: "nested elements are closed in order",
		html:        "<div><p><em>emphasized words here</em></p></div>",
		length:      25,
		want:        "<div><p><em>emphasized</em></p></div>",
	}, {
		description: "void elements are not closed",
		html:        "<p>a<br>b c d e f g h</p>",
		length:      12,
		want:        "<p>a<br>b c</p>",
	}}

	for _, tt := range tests {
		got := Cut(tt.html, tt.length)
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.description, got, tt.want)
		}
	}
}

func TestHTMLHeadings(t *testing.T) {
	headings, err := htmlHeadings(strings.NewReader(`
<h1 id="a">A</h1>
<h2 id="b">B <code>code</code></h2>
<h3 id="c">C</h3>
<h2 id="d">D</h2>
<h1>no id</h1>
<h1 id="e">E</h1>
`))
	if err != nil {
		t.Fatal(err)
	}
	wantHeadings := []Heading{{
		ID:    "a",
		Title: "A",
		Level: 1,
		Subheadings: []Heading{{
			ID:    "b",
			Title: "B code",
			Level: 2,
			Subheadings: []Heading{{
				ID:    "c",
				Title: "C",
				Level: 3,
			}},
		}, {
			ID:    "d",
			Title: "D",
			Level: 2,
		}},
	}, {
		ID:    "e",
		Title: "E",
		Level: 1,
	}}
	if diff := cmp.Diff(wantHeadings, headings); diff != "" {
		t.Error(diff)
	}
}
