package mgen

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestNewTemplateError(t *testing.T) {
	type TestTable struct {
		description string
		err         error
		wantErr     TemplateError
	}

	tests := []TestTable{{
		description: "parse error",
		err:         errors.New(`template: post.html:3: function "foo" not defined`),
		wantErr: TemplateError{
			Name:         "post.html",
			Line:         3,
			ErrorMessage: `function "foo" not defined`,
		},
	}, {
		description: "execution error with column",
		err:         errors.New(`template: post.html:1:3: executing "post.html" at <.Missing>: can't evaluate field Missing in type string`),
		wantErr: TemplateError{
			Name:         "post.html",
			Line:         1,
			ErrorMessage: `executing "post.html" at <.Missing>: can't evaluate field Missing in type string`,
		},
	}, {
		description: "unrecognized error",
		err:         errors.New("something else"),
		wantErr: TemplateError{
			ErrorMessage: "something else",
		},
	}, {
		description: "already a TemplateError",
		err:         TemplateError{Name: "a.html", Line: 2, ErrorMessage: "boom"},
		wantErr:     TemplateError{Name: "a.html", Line: 2, ErrorMessage: "boom"},
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			gotErr := NewTemplateError(tt.err)
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestTemplateErrorString(t *testing.T) {
	err := TemplateError{Name: "post.html", Line: 3, ErrorMessage: "boom"}
	if got, want := err.Error(), "post.html:3: boom"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderer(t *testing.T) {
	templatesFS := fstest.MapFS{
		"base.html":   {Data: []byte(`<html>{{ block "content" . }}default{{ end }}</html>`)},
		"page.html":   {Data: []byte(`{{ template "base.html" . }}`)},
		"post.html":   {Data: []byte(`{{ template "base.html" . }}{{ define "content" }}post {{ upper . }}{{ end }}`)},
		"notes.txt":   {Data: []byte(`not a template {{`)},
		"sub/x.html":  {Data: []byte(`{{ nested }}`)},
		"inner.html":  {Data: []byte(`{{ template "base.html" . }}{{ define "content" }}[{{ template "extra" . }}]{{ end }}{{ define "extra" }}inner{{ end }}`)},
		"outer.html":  {Data: []byte(`{{ template "inner.html" . }}{{ define "extra" }}outer{{ end }}`)},
		"broken.html": {Data: []byte(`{{ .Missing }}`)},
	}
	renderer, err := NewRenderer(templatesFS, map[string]any{"upper": strings.ToUpper})
	if err != nil {
		t.Fatal(err)
	}
	type TestTable struct {
		name string
		want string
	}

	tests := []TestTable{
		{"base.html", "<html>default</html>"},
		{"page.html", "<html>default</html>"},
		{"post.html", "<html>post X</html>"},
		{"inner.html", "<html>[inner]</html>"},
		{"outer.html", "<html>[outer]</html>"},
	}

	for _, tt := range tests {
		var b bytes.Buffer
		err := renderer.Render(&b, tt.name, "x")
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if b.String() != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, b.String(), tt.want)
		}
	}
	if renderer.Has("notes.txt") || renderer.Has("x.html") {
		t.Error("only root *.html files should be templates")
	}
	// Rendering twice reuses the cached template.
	var b bytes.Buffer
	err = renderer.Render(&b, "post.html", "y")
	if err != nil {
		t.Fatal(err)
	}
	if b.String() != "<html>post Y</html>" {
		t.Errorf("got %q", b.String())
	}
	var templateErr TemplateError
	err = renderer.Render(&b, "missing.html", nil)
	if !errors.As(err, &templateErr) || templateErr.Name != "missing.html" {
		t.Errorf("expected a TemplateError for missing.html, got %#v", err)
	}
	err = renderer.Render(&b, "broken.html", "x")
	if !errors.As(err, &templateErr) || templateErr.Name != "broken.html" || templateErr.Line != 1 {
		t.Errorf("expected a TemplateError for broken.html line 1, got %#v", err)
	}
}

func TestRendererStandalone(t *testing.T) {
	templatesFS := fstest.MapFS{
		"base.html": {Data: []byte(`<main>{{ block "content" . }}{{ end }}</main>`)},
	}
	renderer, err := NewRenderer(templatesFS, nil)
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := renderer.ParseStandalone("pages/about.html", `{{ template "base.html" . }}{{ define "content" }}about {{ . }}{{ end }}`)
	if err != nil {
		t.Fatal(err)
	}
	var b bytes.Buffer
	err = Execute(&b, tmpl, "me")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "<main>about me</main>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewRendererParseError(t *testing.T) {
	_, err := NewRenderer(fstest.MapFS{
		"post.html": {Data: []byte("line one\n{{ if }}")},
	}, nil)
	var templateErr TemplateError
	if !errors.As(err, &templateErr) {
		t.Fatalf("expected TemplateError, got %#v", err)
	}
	if templateErr.Name != "post.html" || templateErr.Line != 2 {
		t.Errorf("got %s:%d, want post.html:2", templateErr.Name, templateErr.Line)
	}
}

func TestNewRendererNoTemplates(t *testing.T) {
	renderer, err := NewRenderer(fstest.MapFS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if renderer.Has("post.html") {
		t.Error("expected no templates")
	}
	renderer, err = NewRenderer(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = renderer.Lookup("post.html")
	if err == nil {
		t.Error("expected an error looking up a missing template")
	}
}

func TestBaseFuncMap(t *testing.T) {
	type TestTable struct {
		description string
		text        string
		data        any
		want        string
	}

	tests := []TestTable{
		{"join", `{{ join "post" "id" 3 }}`, nil, "post/id/3"},
		{"seq", `{{ range seq 3 }}{{ . }}{{ end }}`, nil, "123"},
		{"seq with increment", `{{ range seq 5 -2 1 }}{{ . }}{{ end }}`, nil, "531"},
		{"plus minus", `{{ plus 1 2 3 }} {{ minus 10 3 }}`, nil, "6 7"},
		{"monthName", `{{ monthName 3 }}`, nil, "March"},
		{"case", `{{ case . "a" "Apple" "b" "Banana" "Unknown" }}`, "b", "Banana"},
		{"case fallback", `{{ case . "a" "Apple" "Unknown" }}`, "z", "Unknown"},
		{"casewhen", `{{ casewhen false "no" true "yes" }}`, nil, "yes"},
		{"map", `{{ with map "k" "v" }}{{ .k }}{{ end }}`, nil, "v"},
		{"replace", `{{ replace "a-b_c" "-" " " "_" " " }}`, nil, "a b c"},
		{"title", `{{ title "the lord of the rings" }}`, nil, "The Lord of the Rings"},
		{"cut", `{{ cut (safeHTML "<p>one two three</p>") 12 }}`, nil, "<p>one two</p>"},
	}

	for _, tt := range tests {
		tmpl, err := template.New("").Funcs(baseFuncMap).Parse(tt.text)
		if err != nil {
			t.Fatalf("%s: %v", tt.description, err)
		}
		var b bytes.Buffer
		err = tmpl.Execute(&b, tt.data)
		if err != nil {
			t.Fatalf("%s: %v", tt.description, err)
		}
		if b.String() != tt.want {
			t.Errorf("%s: got %q, want %q", tt.description, b.String(), tt.want)
		}
	}
}
