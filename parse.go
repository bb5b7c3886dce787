package mgen

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ParserConfig holds the settings that affect how posts are parsed.
type ParserConfig struct {
	// Use24Hours selects the 24-hour "HH.MM" time format. Otherwise times are
	// read as 12-hour "HH.MM AM|PM".
	Use24Hours bool

	// Transliterator is used to derive the post id from the title.
	Transliterator Transliterator
}

// frontMatterDelimiter separates metadata from the body in the front-matter
// dialect.
const frontMatterDelimiter = "---"

// postSetters maps each recognized metadata key to the function that
// applies it to a post.
var postSetters = map[string]func(post *Post, value string, config ParserConfig) error{
	"title":    setTitle,
	"date":     setDate,
	"tags":     setTags,
	"id":       setID,
	"template": setTemplate,
}

func setTitle(post *Post, value string, _ ParserConfig) error {
	if value == "" {
		return &ParseError{Reason: "title is empty"}
	}
	post.Title = value
	return nil
}

func setDate(post *Post, value string, config ParserConfig) error {
	date, err := ParseDate(value, config.Use24Hours)
	if err != nil {
		return err
	}
	post.Date = date
	return nil
}

func setTags(post *Post, value string, config ParserConfig) error {
	post.Tags = post.Tags[:0]
	for _, tag := range strings.Split(value, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		// The tag would be written to the root of the tag directory.
		if Slug(tag, config.Transliterator) == "" {
			return &ParseError{Reason: "tag " + strconv.Quote(tag) + " produces an empty slug"}
		}
		post.Tags = append(post.Tags, tag)
	}
	return nil
}

// setID sets an explicit id, which is used as the post's directory name
// unchanged and so must be a single path segment.
func setID(post *Post, value string, _ ParserConfig) error {
	if value == "" {
		return &ParseError{Reason: "id is empty"}
	}
	if value == "." || value == ".." || strings.ContainsAny(value, "/\\") {
		return &ParseError{Reason: "id " + strconv.Quote(value) + " is not a valid directory name"}
	}
	for _, char := range value {
		if unicode.IsControl(char) {
			return &ParseError{Reason: "id " + strconv.Quote(value) + " contains a control character"}
		}
	}
	post.ID = value
	return nil
}

func setTemplate(post *Post, value string, _ ParserConfig) error {
	if value == "" {
		return &ParseError{Reason: "template is empty"}
	}
	post.Template = value
	return nil
}

// ParseDate parses a post date. The date is DD/MM/YYYY or DD.MM.YYYY (day and
// month may have one digit) and may be followed by a comma and a time of day,
// either "HH.MM" when use24Hours is set or "HH.MM AM|PM" otherwise. A colon
// is accepted in place of the period inside the time.
func ParseDate(value string, use24Hours bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	datePart, timePart, hasTime := strings.Cut(value, ",")
	datePart = strings.TrimSpace(datePart)
	var layout string
	if strings.Contains(datePart, "/") {
		layout = "2/1/2006"
	} else if strings.Contains(datePart, ".") {
		layout = "2.1.2006"
	} else {
		return time.Time{}, &ParseError{Reason: "invalid date " + strconv.Quote(value) + ": expected DD/MM/YYYY or DD.MM.YYYY"}
	}
	if hasTime {
		timePart = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(timePart), ":", "."))
		datePart += " " + timePart
		if use24Hours {
			layout += " 15.04"
		} else {
			layout += " 3.04 PM"
		}
	}
	date, err := time.Parse(layout, datePart)
	if err != nil {
		return time.Time{}, &ParseError{Reason: "invalid date " + strconv.Quote(value) + ": " + err.Error()}
	}
	return date, nil
}

// ParsePost parses the text of one post source. name identifies the source
// in errors and becomes the post's SourceName.
//
// Two dialects are understood. In the front-matter dialect an unbroken run
// of "key: value" lines ends at a line consisting of "---" and every line
// after it is body. Otherwise the text is read in the inline dialect:
// leading "key: value" lines with a recognized key are metadata and the first
// other line starts the body.
func ParsePost(name, text string, config ParserConfig) (*Post, error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	post := &Post{
		Template:   DefaultPostTemplate,
		SourceName: name,
	}
	var err error
	if delimiter := frontMatterLine(lines); delimiter >= 0 {
		err = parseFrontMatter(post, lines, delimiter, config)
	} else {
		err = parseInline(post, lines, config)
	}
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) && parseErr.Source == "" {
			parseErr.Source = name
		}
		return nil, err
	}
	if post.Title == "" {
		return nil, &ParseError{Source: name, Reason: "missing title"}
	}
	if post.Date.IsZero() {
		return nil, &ParseError{Source: name, Reason: "missing date"}
	}
	hasText := false
	for _, line := range post.Body {
		if strings.TrimSpace(line) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, &ParseError{Source: name, Reason: "missing body"}
	}
	if post.ID == "" {
		post.ID = Slug(post.Title, config.Transliterator)
		if post.ID == "" {
			return nil, &ParseError{Source: name, Reason: "title " + strconv.Quote(post.Title) + " produces an empty id"}
		}
	}
	return post, nil
}

// frontMatterLine returns the index of the front-matter delimiter, or -1 if
// the lines are not in the front-matter dialect. After any leading blank
// lines, the metadata must be an unbroken run of "key: value" lines ending at
// the delimiter. A blank line or a line such as a URL ends the run, so a
// thematic break further down the body is never taken for the delimiter.
func frontMatterLine(lines []string) int {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == frontMatterDelimiter {
			return i
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || !isMetadataKey(strings.TrimSpace(key)) || strings.HasPrefix(value, "//") {
			return -1
		}
	}
	return -1
}

// isMetadataKey reports whether key is a bare identifier made of letters,
// digits, underscores and hyphens.
func isMetadataKey(key string) bool {
	if key == "" {
		return false
	}
	for _, char := range key {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return false
		}
	}
	return true
}

func parseFrontMatter(post *Post, lines []string, delimiter int, config ParserConfig) error {
	for _, line := range lines[:delimiter] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		setter, ok := postSetters[key]
		if !ok {
			if post.Attributes == nil {
				post.Attributes = make(map[string]string)
			}
			post.Attributes[key] = value
			continue
		}
		err := setter(post, value, config)
		if err != nil {
			return err
		}
	}
	post.Body = lines[delimiter+1:]
	return nil
}

func parseInline(post *Post, lines []string, config ParserConfig) error {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	for ; i < len(lines); i++ {
		key, value, ok := strings.Cut(lines[i], ":")
		if !ok {
			break
		}
		setter, ok := postSetters[strings.TrimSpace(key)]
		if !ok {
			break
		}
		err := setter(post, strings.TrimSpace(value), config)
		if err != nil {
			return err
		}
	}
	post.Body = lines[i:]
	return nil
}
