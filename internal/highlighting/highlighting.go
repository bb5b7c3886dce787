// Package highlighting is a goldmark extension that renders fenced code
// blocks with chroma.
package highlighting

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// Option configures the extension.
type Option func(*config)

type config struct {
	style         *chroma.Style
	formatOptions []chromahtml.Option
}

// WithStyle sets the chroma style by name. Unknown names fall back to the
// default chroma style.
func WithStyle(name string) Option {
	return func(c *config) {
		c.style = styles.Get(name)
	}
}

// WithFormatOptions appends options passed to the chroma HTML formatter.
func WithFormatOptions(options ...chromahtml.Option) Option {
	return func(c *config) {
		c.formatOptions = append(c.formatOptions, options...)
	}
}

// NewHighlighting returns a goldmark extension that highlights fenced code
// blocks.
func NewHighlighting(options ...Option) goldmark.Extender {
	c := &config{
		style: styles.Fallback,
	}
	for _, option := range options {
		option(c)
	}
	return &extension{
		style:     c.style,
		formatter: chromahtml.New(c.formatOptions...),
	}
}

type extension struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// Extend implements goldmark.Extender.
func (e *extension) Extend(markdown goldmark.Markdown) {
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(e, 200),
		),
	)
}

// RegisterFuncs implements renderer.NodeRenderer.
func (e *extension) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, e.renderFencedCodeBlock)
}

func (e *extension) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	codeBlock := node.(*ast.FencedCodeBlock)
	var b strings.Builder
	lines := codeBlock.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
	var lexer chroma.Lexer
	if language := codeBlock.Language(source); len(language) > 0 {
		lexer = lexers.Get(string(language))
	}
	if lexer == nil {
		w.WriteString("<pre><code>")
		w.Write(util.EscapeHTML([]byte(b.String())))
		w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, b.String())
	if err != nil {
		return ast.WalkStop, err
	}
	err = e.formatter.Format(w, e.style, iterator)
	if err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
