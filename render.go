package mgen

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/template/parse"
	"time"

	"github.com/bokwoon95/mgen/stacktrace"
	"github.com/davecgh/go-spew/spew"
)

// TemplateError is used to represent an error when parsing or executing a
// template.
type TemplateError struct {
	// Name of the template that caused the error.
	Name string `json:"name"`

	// Line number in the template that caused the error.
	Line int `json:"line"`

	// ErrorMessage of the error.
	ErrorMessage string `json:"errorMessage"`
}

// NewTemplateError constructs a new TemplateError from an error returned by
// the html/template package. The template name and line number are only
// available in the error string, so that is what gets parsed.
func NewTemplateError(err error) error {
	var templateErr TemplateError
	if errors.As(err, &templateErr) {
		return templateErr
	}
	sections := strings.SplitN(err.Error(), ":", 4)
	if len(sections) < 4 || strings.TrimSpace(sections[0]) != "template" {
		return TemplateError{
			ErrorMessage: err.Error(),
		}
	}
	lineNo, _ := strconv.Atoi(strings.TrimSpace(sections[2]))
	errorMessage := strings.TrimSpace(sections[3])
	// Execution errors carry a column number after the line number.
	if head, tail, ok := strings.Cut(errorMessage, ":"); ok {
		if colNo, _ := strconv.Atoi(strings.TrimSpace(head)); colNo > 0 {
			errorMessage = strings.TrimSpace(tail)
		}
	}
	return TemplateError{
		Name:         strings.TrimSpace(sections[1]),
		Line:         lineNo,
		ErrorMessage: errorMessage,
	}
}

// Error implements the error interface.
func (templateErr TemplateError) Error() string {
	if templateErr.Name == "" {
		return templateErr.ErrorMessage
	}
	if templateErr.Line == 0 {
		return templateErr.Name + ": " + templateErr.ErrorMessage
	}
	return templateErr.Name + ":" + strconv.Itoa(templateErr.Line) + ": " + templateErr.ErrorMessage
}

// Renderer renders the site templates. Every *.html file at the root of the
// templates directory is parsed once, under its file name. A template can
// invoke other template files by name and the blocks it defines take
// precedence over the blocks of the files it invokes, so a page template can
// {{ template "base.html" . }} and fill in its blocks.
type Renderer struct {
	funcMap map[string]any
	parsed  map[string]*template.Template

	mutex sync.Mutex
	cache map[string]*template.Template
}

// NewRenderer parses the templates found in templatesFS. A nil templatesFS
// or a missing directory yields a Renderer without templates.
func NewRenderer(templatesFS fs.FS, funcMap map[string]any) (*Renderer, error) {
	renderer := &Renderer{
		funcMap: funcMap,
		parsed:  make(map[string]*template.Template),
		cache:   make(map[string]*template.Template),
	}
	if templatesFS == nil {
		return renderer, nil
	}
	dirEntries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return renderer, nil
		}
		return nil, stacktrace.New(err)
	}
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || path.Ext(name) != ".html" {
			continue
		}
		b, err := fs.ReadFile(templatesFS, name)
		if err != nil {
			return nil, stacktrace.New(err)
		}
		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(b))
		if err != nil {
			return nil, NewTemplateError(err)
		}
		renderer.parsed[name] = tmpl
	}
	return renderer, nil
}

// Has reports whether the named template exists.
func (renderer *Renderer) Has(name string) bool {
	_, ok := renderer.parsed[name]
	return ok
}

// Lookup returns the executable template of the named template file.
func (renderer *Renderer) Lookup(name string) (*template.Template, error) {
	renderer.mutex.Lock()
	defer renderer.mutex.Unlock()
	if tmpl, ok := renderer.cache[name]; ok {
		return tmpl, nil
	}
	own, ok := renderer.parsed[name]
	if !ok {
		return nil, TemplateError{
			Name:         name,
			ErrorMessage: "template does not exist",
		}
	}
	tmpl, err := renderer.assemble(name, own)
	if err != nil {
		return nil, err
	}
	renderer.cache[name] = tmpl
	return tmpl, nil
}

// ParseStandalone parses text as a template that is not part of the
// templates directory but can still invoke the templates in it.
func (renderer *Renderer) ParseStandalone(name, text string) (*template.Template, error) {
	own, err := template.New(name).Funcs(renderer.funcMap).Parse(text)
	if err != nil {
		return nil, NewTemplateError(err)
	}
	renderer.mutex.Lock()
	defer renderer.mutex.Unlock()
	return renderer.assemble(name, own)
}

// assemble builds a fresh template set for name out of clones of the
// template files own invokes, the most deeply nested first, and adds the
// trees of own last so that its blocks win. The parsed templates are never
// executed themselves, which keeps them reusable.
func (renderer *Renderer) assemble(name string, own *template.Template) (*template.Template, error) {
	final := template.New(name).Funcs(renderer.funcMap)
	addTrees := func(tmpl *template.Template) error {
		clone, err := tmpl.Clone()
		if err != nil {
			return stacktrace.New(err)
		}
		for _, t := range clone.Templates() {
			if t.Tree == nil || t.Tree.Root == nil {
				continue
			}
			_, err := final.AddParseTree(t.Name(), t.Tree)
			if err != nil {
				return NewTemplateError(err)
			}
		}
		return nil
	}
	for _, dependency := range renderer.dependencies(name, own) {
		err := addTrees(renderer.parsed[dependency])
		if err != nil {
			return nil, err
		}
	}
	err := addTrees(own)
	if err != nil {
		return nil, err
	}
	return final.Lookup(name), nil
}

// dependencies returns the template files invoked by own, directly or
// through each other, ordered so that every file comes after the files it
// invokes.
func (renderer *Renderer) dependencies(name string, own *template.Template) []string {
	var order []string
	visited := map[string]bool{name: true}
	var visit func(tmpl *template.Template)
	visit = func(tmpl *template.Template) {
		calls := make(map[string]bool)
		for _, t := range tmpl.Templates() {
			if t.Tree != nil {
				templateCalls(t.Tree.Root, calls)
			}
		}
		names := make([]string, 0, len(calls))
		for call := range calls {
			names = append(names, call)
		}
		slices.Sort(names)
		for _, call := range names {
			parsed, ok := renderer.parsed[call]
			if !ok || visited[call] {
				continue
			}
			visited[call] = true
			visit(parsed)
			order = append(order, call)
		}
	}
	visit(own)
	return order
}

// templateCalls records the names of the templates invoked under node.
func templateCalls(node parse.Node, calls map[string]bool) {
	switch node := node.(type) {
	case *parse.ListNode:
		if node == nil {
			return
		}
		for _, child := range node.Nodes {
			templateCalls(child, calls)
		}
	case *parse.TemplateNode:
		calls[node.Name] = true
	case *parse.IfNode:
		templateCalls(node.List, calls)
		templateCalls(node.ElseList, calls)
	case *parse.RangeNode:
		templateCalls(node.List, calls)
		templateCalls(node.ElseList, calls)
	case *parse.WithNode:
		templateCalls(node.List, calls)
		templateCalls(node.ElseList, calls)
	}
}

// Render executes the named template with data and writes the result to w.
func (renderer *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, err := renderer.Lookup(name)
	if err != nil {
		return err
	}
	return Execute(w, tmpl, data)
}

// Execute executes tmpl, reporting failures as a TemplateError.
func Execute(w io.Writer, tmpl *template.Template, data any) error {
	err := tmpl.Execute(w, data)
	if err != nil {
		return NewTemplateError(err)
	}
	return nil
}

// baseFuncMap holds the template functions that do not depend on the site
// being generated.
var baseFuncMap = map[string]any{
	"dump": func(x any) template.HTML {
		return template.HTML("<pre>" + template.HTMLEscapeString(spew.Sdump(x)) + "</pre>")
	},
	"join": func(args ...any) (string, error) {
		elems := make([]string, len(args))
		for i, arg := range args {
			switch arg := arg.(type) {
			case string:
				elems[i] = arg
			default:
				n, err := toInt(arg)
				if err != nil {
					return "", err
				}
				elems[i] = strconv.Itoa(n)
			}
		}
		return path.Join(elems...), nil
	},
	"list": func(args ...any) []any { return args },
	"map": func(keyvalue ...any) (map[string]any, error) {
		if len(keyvalue)%2 != 0 {
			return nil, fmt.Errorf("odd number of arguments passed in")
		}
		m := make(map[string]any, len(keyvalue)/2)
		for i := 0; i+1 < len(keyvalue); i += 2 {
			key, ok := keyvalue[i].(string)
			if !ok {
				return nil, fmt.Errorf("key is not a string: %#v", keyvalue[i])
			}
			m[key] = keyvalue[i+1]
		}
		return m, nil
	},
	"safeHTML": func(x any) template.HTML {
		switch x := x.(type) {
		case nil:
			return ""
		case string:
			return template.HTML(x)
		default:
			return template.HTML(fmt.Sprint(x))
		}
	},
	"formatTime": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"monthName": func(month any) (string, error) {
		n, err := toInt(month)
		if err != nil {
			return "", err
		}
		if n < 1 || n > 12 {
			return "", fmt.Errorf("month out of range: %d", n)
		}
		return time.Month(n).String(), nil
	},
	"htmlHeadings": func(x any) ([]Heading, error) {
		switch x := x.(type) {
		case string:
			return htmlHeadings(strings.NewReader(x))
		case template.HTML:
			return htmlHeadings(strings.NewReader(string(x)))
		default:
			return nil, fmt.Errorf("not a string or template.HTML: %#v", x)
		}
	},
	"cut": func(x any, length int) (template.HTML, error) {
		switch x := x.(type) {
		case string:
			return template.HTML(Cut(x, length)), nil
		case template.HTML:
			return template.HTML(Cut(string(x), length)), nil
		default:
			return "", fmt.Errorf("not a string or template.HTML: %#v", x)
		}
	},
	"case": func(expr any, args ...any) any {
		fallback, args := splitFallback(args)
		for i := 0; i+1 < len(args); i += 2 {
			if reflect.DeepEqual(expr, args[i]) {
				return args[i+1]
			}
		}
		return fallback
	},
	"casewhen": func(args ...any) any {
		fallback, args := splitFallback(args)
		for i := 0; i+1 < len(args); i += 2 {
			if truth, _ := template.IsTrue(args[i]); truth {
				return args[i+1]
			}
		}
		return fallback
	},
	"hasPrefix":  strings.HasPrefix,
	"hasSuffix":  strings.HasSuffix,
	"trimPrefix": strings.TrimPrefix,
	"trimSuffix": strings.TrimSuffix,
	"trimSpace":  strings.TrimSpace,
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"replace": func(s string, replacements ...string) (string, error) {
		if len(replacements)%2 != 0 {
			return "", fmt.Errorf("odd number of replacements passed in")
		}
		return strings.NewReplacer(replacements...).Replace(s), nil
	},
	"title": func(s string) string {
		return titleConverter.Title(s)
	},
	"base": path.Base,
	"ext":  path.Ext,
	"seq": func(args ...any) ([]int, error) {
		nums := make([]int, len(args))
		for i, arg := range args {
			n, err := toInt(arg)
			if err != nil {
				return nil, err
			}
			nums[i] = n
		}
		first, increment, last := 1, 1, 0
		switch len(nums) {
		case 1:
			last = nums[0]
		case 2:
			first, last = nums[0], nums[1]
		case 3:
			first, increment, last = nums[0], nums[1], nums[2]
		default:
			return nil, fmt.Errorf("expected 1 to 3 arguments, got %d", len(nums))
		}
		if increment == 0 {
			return nil, fmt.Errorf("increment cannot be zero")
		}
		var seq []int
		for n := first; (increment > 0 && n <= last) || (increment < 0 && n >= last); n += increment {
			seq = append(seq, n)
		}
		return seq, nil
	},
	"plus": func(args ...any) (int, error) {
		sum := 0
		for _, arg := range args {
			n, err := toInt(arg)
			if err != nil {
				return 0, err
			}
			sum += n
		}
		return sum, nil
	},
	"minus": func(a any, args ...any) (int, error) {
		result, err := toInt(a)
		if err != nil {
			return 0, err
		}
		for _, arg := range args {
			n, err := toInt(arg)
			if err != nil {
				return 0, err
			}
			result -= n
		}
		return result, nil
	},
}

func splitFallback(args []any) (fallback any, pairs []any) {
	if len(args)%2 == 0 {
		return "", args
	}
	return args[len(args)-1], args[:len(args)-1]
}

func toInt(x any) (int, error) {
	switch x := x.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case time.Month:
		return int(x), nil
	default:
		return 0, fmt.Errorf("not a number: %#v", x)
	}
}
