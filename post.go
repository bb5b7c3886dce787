package mgen

import (
	"strings"
	"time"
)

// DefaultPostTemplate is the template a post is rendered with unless it
// names another one.
const DefaultPostTemplate = "post.html"

// Post is one blog entry parsed from a source file.
type Post struct {
	// Title of the post.
	Title string

	// Date of the post.
	Date time.Time

	// Tags in declared order. Duplicates are kept and the labels are stored
	// as written; they are slugged when turned into paths.
	Tags []string

	// Body lines, verbatim.
	Body []string

	// ID is the slug of the title unless the source supplies an explicit id.
	ID string

	// Attributes holds the metadata keys that have no typed field.
	Attributes map[string]string

	// Template is the name of the template the post is rendered with.
	Template string

	// SourceName is the name of the file the post was parsed from.
	SourceName string
}

// Content returns the body as a single markdown string.
func (post *Post) Content() string {
	return strings.Join(post.Body, "\n")
}

// HasTag reports whether the post carries the given tag.
func (post *Post) HasTag(tag string) bool {
	for _, t := range post.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Attribute returns the value of a free-form metadata attribute, or the empty
// string if it is not set.
func (post *Post) Attribute(name string) string {
	return post.Attributes[name]
}

// ParseError is returned when a post source is malformed or incomplete.
type ParseError struct {
	// Source identifies the post source, usually its file name.
	Source string

	// Reason describes what is wrong.
	Reason string
}

// Error implements the error interface.
func (parseErr *ParseError) Error() string {
	if parseErr.Source == "" {
		return parseErr.Reason
	}
	return parseErr.Source + ": " + parseErr.Reason
}
