package mgen

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/bokwoon95/mgen/internal/highlighting"
	"github.com/bokwoon95/mgen/internal/markdownmath"
	fences "github.com/stefanfritsch/goldmark-fences"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// DefaultCodeStyle is the chroma style used for code blocks.
const DefaultCodeStyle = "onedark"

// NewMarkdown returns the goldmark converter used for post bodies.
func NewMarkdown(codeStyle string) goldmark.Markdown {
	if codeStyle == "" {
		codeStyle = DefaultCodeStyle
	}
	return goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle(codeStyle),
				highlighting.WithFormatOptions(chromahtml.TabWidth(2)),
			),
			extension.Footnote,
			extension.CJK,
			markdownmath.Extension,
			&fences.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithUnsafe(),
		),
	)
}

// markdownTextOnly returns the plain text of a markdown snippet, dropping
// images, code blocks and raw HTML.
func markdownTextOnly(parser parser.Parser, src []byte) string {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
	}()
	document := parser.Parse(text.NewReader(src))
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Kind() == ast.KindParagraph || node.Kind() == ast.KindHeading {
				buf.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := node.(type) {
		case *ast.Image, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

// voidElements never have an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

func isBreakChar(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '.', '!', '?', ',', ';':
		return true
	}
	return false
}

// Cut shortens an HTML snippet to at most length bytes of markup. A cut never
// lands inside a tag: it happens at the last break character (whitespace or
// one of .!?,;) of the text before the limit, or right before the tag that
// crosses it. Elements left open by the cut are closed.
func Cut(s string, length int) string {
	if len(s) <= length {
		return s
	}
	var b strings.Builder
	var openElements []string
	tokenizer := html.NewTokenizer(strings.NewReader(s))
loop:
	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			if tokenizer.Err() == io.EOF {
				return s
			}
			break
		}
		raw := tokenizer.Raw()
		if b.Len()+len(raw) <= length {
			b.Write(raw)
			switch tokenType {
			case html.StartTagToken:
				name, _ := tokenizer.TagName()
				if !voidElements[string(name)] {
					openElements = append(openElements, string(name))
				}
			case html.EndTagToken:
				name, _ := tokenizer.TagName()
				for i := len(openElements) - 1; i >= 0; i-- {
					if openElements[i] == string(name) {
						openElements = openElements[:i]
						break
					}
				}
			}
			continue
		}
		if tokenType != html.TextToken {
			break
		}
		limit := length - b.Len()
		for i := min(limit, len(raw)-1); i >= 0; i-- {
			if isBreakChar(raw[i]) {
				b.Write(raw[:i])
				break loop
			}
		}
		if b.Len() == 0 {
			return s
		}
		break
	}
	output := strings.TrimRightFunc(b.String(), func(r rune) bool {
		return r < utf8.RuneSelf && isBreakChar(byte(r))
	})
	b.Reset()
	b.WriteString(output)
	for i := len(openElements) - 1; i >= 0; i-- {
		b.WriteString("</" + openElements[i] + ">")
	}
	return b.String()
}

// Heading is one heading of a rendered post that has an id attribute.
type Heading struct {
	// ID of the heading.
	ID string

	// Title is the text of the heading.
	Title string

	// Level is 1 to 6 for h1 to h6.
	Level int

	// Subheadings nested under the heading.
	Subheadings []Heading
}

// htmlHeadings returns the headings with an id found in the HTML read from r,
// nested by level.
func htmlHeadings(r io.Reader) ([]Heading, error) {
	root := &Heading{}
	// stack[i] is the innermost open heading of level i (0 is the root).
	var stack [7]*Heading
	stack[0] = root
	var current *Heading
	var title strings.Builder
	tokenizer := html.NewTokenizer(r)
	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return root.Subheadings, nil
			}
			return nil, tokenizer.Err()
		case html.StartTagToken:
			name, hasAttr := tokenizer.TagName()
			level := headingLevel(name)
			if level == 0 || current != nil {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) == "id" {
					current = &Heading{ID: string(val), Level: level}
					title.Reset()
					break
				}
			}
		case html.TextToken:
			if current != nil {
				title.Write(tokenizer.Text())
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if current == nil || headingLevel(name) != current.Level {
				continue
			}
			current.Title = strings.TrimSpace(title.String())
			parent := root
			for level := current.Level - 1; level >= 1; level-- {
				if stack[level] != nil {
					parent = stack[level]
					break
				}
			}
			parent.Subheadings = append(parent.Subheadings, *current)
			stack[current.Level] = &parent.Subheadings[len(parent.Subheadings)-1]
			for level := current.Level + 1; level < len(stack); level++ {
				stack[level] = nil
			}
			current = nil
		}
	}
}

func headingLevel(name []byte) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}
