package mgen

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bokwoon95/mgen/stacktrace"
	"github.com/jdkato/prose/transform"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// OptionsFile is the name of the options file inside the source directory.
const OptionsFile = "options.yaml"

// Options is the configuration of one generator run.
type Options struct {
	// Source is the site source directory.
	Source string `yaml:"source" json:"source"`

	// Target is the output directory.
	Target string `yaml:"target" json:"target"`

	// URL is the public base URL of the site, excluding the webroot.
	URL string `yaml:"url" json:"url"`

	// Webroot is the path prefix the site is deployed under.
	Webroot string `yaml:"webroot" json:"webroot"`

	// Posts is the number of posts per listing page.
	Posts int `yaml:"posts" json:"posts"`

	// Items is the number of items in the global RSS feed.
	Items int `yaml:"items" json:"items"`

	// Title of the site.
	Title string `yaml:"title" json:"title"`

	// Years is the year filter for the date listings.
	Years IntList `yaml:"years" json:"years"`

	// Lang is the BCP 47 language tag of the site.
	Lang string `yaml:"lang" json:"lang"`

	// Use24Hours selects 24-hour times in post dates.
	Use24Hours bool `yaml:"use24hours" json:"use24hours"`

	// Transliterate converts non-ASCII characters in ids and links to ASCII.
	Transliterate bool `yaml:"transliterate" json:"transliterate"`

	// IgnoreTags keeps posts carrying these tags out of the global and date
	// listings.
	IgnoreTags StringList `yaml:"ignoreTags" json:"ignoreTags"`

	// RobotsDisallow lists the paths disallowed in robots.txt.
	RobotsDisallow StringList `yaml:"robotsDisallow" json:"robotsDisallow"`

	// Clear empties the target before generating.
	Clear bool `yaml:"clear" json:"clear"`

	// CodeStyle is the chroma style of highlighted code blocks.
	CodeStyle string `yaml:"codeStyle" json:"codeStyle"`

	// FeedExcerpt caps the length of feed item descriptions in bytes of
	// HTML. Zero puts the full post body in the feed.
	FeedExcerpt int `yaml:"feedExcerpt" json:"feedExcerpt"`

	SkipPosts     bool `yaml:"skipPosts" json:"skipPosts"`
	SkipPages     bool `yaml:"skipPages" json:"skipPages"`
	SkipTags      bool `yaml:"skipTags" json:"skipTags"`
	SkipRSS       bool `yaml:"skipRSS" json:"skipRSS"`
	SkipResources bool `yaml:"skipResources" json:"skipResources"`
	SkipIndexes   bool `yaml:"skipIndexes" json:"skipIndexes"`
	SkipSitemap   bool `yaml:"skipSitemap" json:"skipSitemap"`
	SkipMisc      bool `yaml:"skipMisc" json:"skipMisc"`
	SkipRouting   bool `yaml:"skipRouting" json:"skipRouting"`
	SkipRobots    bool `yaml:"skipRobots" json:"skipRobots"`
}

// DefaultOptions returns the options every run starts from.
func DefaultOptions() Options {
	return Options{
		URL:           "localhost",
		Webroot:       "/",
		Posts:         10,
		Items:         30,
		Years:         IntList{time.Now().Year()},
		Lang:          "en",
		Use24Hours:    true,
		Transliterate: true,
		CodeStyle:     DefaultCodeStyle,
	}
}

// LoadOptionsFile overlays the options file found in the source directory
// onto options. A missing file leaves options unchanged.
func LoadOptionsFile(options *Options, sourceDir string) error {
	b, err := os.ReadFile(filepath.Join(sourceDir, OptionsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return stacktrace.New(err)
	}
	return DecodeOptions(options, b)
}

// DecodeOptions overlays YAML encoded options onto options. Unknown keys are
// rejected.
func DecodeOptions(options *Options, b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(b))
	decoder.KnownFields(true)
	err := decoder.Decode(options)
	if err != nil {
		return &ConfigurationError{Reason: OptionsFile + ": " + err.Error()}
	}
	return nil
}

var (
	titleConverter       = transform.NewTitleConverter(transform.APStyle)
	urlSeparatorReplacer = strings.NewReplacer("-", " ", "_", " ")
)

// Normalize fills in the options derived from other options and validates
// the result.
func (options *Options) Normalize() error {
	if options.Source == "" {
		return &ConfigurationError{Reason: "no source specified"}
	}
	if options.Target == "" {
		return &ConfigurationError{Reason: "no target specified"}
	}
	if options.URL == "" {
		return &ConfigurationError{Reason: "no url specified"}
	}
	if options.Title == "" {
		sourceDir, err := filepath.Abs(options.Source)
		if err != nil {
			return stacktrace.New(err)
		}
		options.Title = titleConverter.Title(urlSeparatorReplacer.Replace(filepath.Base(sourceDir)))
	}
	if options.Webroot == "" {
		options.Webroot = "/"
	}
	if options.Posts < 1 {
		return &ConfigurationError{Reason: "posts must be at least 1, got " + strconv.Itoa(options.Posts)}
	}
	if options.Items < 0 {
		return &ConfigurationError{Reason: "items cannot be negative, got " + strconv.Itoa(options.Items)}
	}
	if options.FeedExcerpt < 0 {
		return &ConfigurationError{Reason: "feedExcerpt cannot be negative, got " + strconv.Itoa(options.FeedExcerpt)}
	}
	if len(options.Years) == 0 {
		return &ConfigurationError{Reason: "year filter is empty"}
	}
	if options.Lang == "" {
		options.Lang = "en"
	}
	tag, err := language.Parse(options.Lang)
	if err != nil {
		return &ConfigurationError{Reason: "lang " + strconv.Quote(options.Lang) + ": " + err.Error()}
	}
	options.Lang = tag.String()
	return nil
}

// StringList is a list of strings that can be written either as a YAML
// sequence or as one comma separated string.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (list *StringList) UnmarshalYAML(value *yaml.Node) error {
	var items []string
	switch value.Kind {
	case yaml.ScalarNode:
		items = strings.Split(value.Value, ",")
	case yaml.SequenceNode:
		err := value.Decode(&items)
		if err != nil {
			return err
		}
	default:
		return errors.New("line " + strconv.Itoa(value.Line) + ": expected a string or a list of strings")
	}
	*list = (*list)[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			*list = append(*list, item)
		}
	}
	return nil
}

// String implements flag.Value.
func (list *StringList) String() string {
	if list == nil {
		return ""
	}
	return strings.Join(*list, ",")
}

// Set implements flag.Value.
func (list *StringList) Set(s string) error {
	*list = (*list)[:0]
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			*list = append(*list, item)
		}
	}
	return nil
}

// IntList is a list of integers that can be written either as a YAML
// sequence or as one comma separated string.
type IntList []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (list *IntList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return list.Set(value.Value)
	case yaml.SequenceNode:
		var nums []int
		err := value.Decode(&nums)
		if err != nil {
			return err
		}
		*list = nums
		return nil
	default:
		return errors.New("line " + strconv.Itoa(value.Line) + ": expected a number or a list of numbers")
	}
}

// String implements flag.Value.
func (list *IntList) String() string {
	if list == nil {
		return ""
	}
	return joinInts(*list, ",")
}

// Set implements flag.Value.
func (list *IntList) Set(s string) error {
	var nums []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		num, err := strconv.Atoi(item)
		if err != nil {
			return errors.New("invalid number " + strconv.Quote(item))
		}
		nums = append(nums, num)
	}
	*list = nums
	return nil
}
