// Package markdownmath is a goldmark extension that turns fenced code blocks
// tagged "math" or "latex" into MathML.
package markdownmath

import (
	"bytes"
	"strings"

	"git.sr.ht/~mekyt/latex2mathml"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Extension is the math extension.
var Extension goldmark.Extender = extension{}

// mathLanguages are the fence info strings treated as LaTeX.
var mathLanguages = [][]byte{[]byte("math"), []byte("latex")}

const mathMLNamespace = "http://www.w3.org/1998/Math/MathML"

type extension struct{}

func (extension) Extend(markdown goldmark.Markdown) {
	markdown.Parser().AddOptions(
		parser.WithASTTransformers(
			util.Prioritized(transformer{}, 100),
		),
	)
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(nodeRenderer{}, 100),
		),
	)
}

// KindMathBlock is the node kind of a display math block.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// MathBlock holds the LaTeX source of a display math block in its lines.
type MathBlock struct {
	ast.BaseBlock
}

// Kind implements ast.Node.
func (n *MathBlock) Kind() ast.NodeKind { return KindMathBlock }

// IsRaw implements ast.Node.
func (n *MathBlock) IsRaw() bool { return true }

// Dump implements ast.Node.
func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

type transformer struct{}

func (transformer) Transform(document *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	var codeBlocks []*ast.FencedCodeBlock
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		codeBlock, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		language := codeBlock.Language(source)
		for _, mathLanguage := range mathLanguages {
			if bytes.EqualFold(language, mathLanguage) {
				codeBlocks = append(codeBlocks, codeBlock)
				break
			}
		}
		return ast.WalkSkipChildren, nil
	})
	// Replace after walking, swapping nodes mid-walk breaks sibling links.
	for _, codeBlock := range codeBlocks {
		parent := codeBlock.Parent()
		if parent == nil {
			continue
		}
		mathBlock := &MathBlock{}
		mathBlock.SetLines(codeBlock.Lines())
		parent.ReplaceChild(parent, codeBlock, mathBlock)
	}
}

type nodeRenderer struct{}

func (nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathBlock, renderMathBlock)
}

func renderMathBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
	w.WriteString(latex2mathml.Convert(b.String(), mathMLNamespace, "block", 2))
	w.WriteString("\n")
	return ast.WalkSkipChildren, nil
}
