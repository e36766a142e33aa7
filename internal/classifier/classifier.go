// Package classifier turns raw feed entries into normalized offers.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"freegames_bot/internal/model"
)

var spaceRe = regexp.MustCompile(`\s+`)

// RuleSpec is the uncompiled form of a detection rule, as found in config.
type RuleSpec struct {
	Tag      string   `yaml:"tag"`
	Patterns []string `yaml:"patterns"`
}

// Rule maps a source tag to the patterns that identify it.
type Rule struct {
	Tag      model.Source
	Patterns []*regexp.Regexp
}

// DefaultRules is the built-in detection table. Order matters: the first
// matching rule wins.
var DefaultRules = []RuleSpec{
	{Tag: string(model.SourceEpic), Patterns: []string{`\bepic\b`, `epicgames`}},
	{Tag: string(model.SourceSteam), Patterns: []string{`\bsteam\b`, `store\.steampowered\.com`}},
	{Tag: string(model.SourceGOG), Patterns: []string{`\bgog\b`, `gog\.com`}},
	{Tag: string(model.SourcePrime), Patterns: []string{`\bprime\b`, `primegaming`, `gaming\.amazon`}},
}

// Classifier detects the source of feed entries using an ordered rule table.
type Classifier struct {
	rules []Rule
}

// New compiles specs into a Classifier. A nil or empty specs uses DefaultRules.
func New(specs []RuleSpec) (*Classifier, error) {
	if len(specs) == 0 {
		specs = DefaultRules
	}

	seen := make(map[model.Source]bool, len(specs))
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		tag := model.Source(strings.ToLower(strings.TrimSpace(spec.Tag)))
		if tag == "" {
			return nil, fmt.Errorf("empty source tag")
		}
		if tag == model.SourceOther {
			return nil, fmt.Errorf("source tag %q is reserved", tag)
		}
		if seen[tag] {
			return nil, fmt.Errorf("duplicate source tag %q", tag)
		}
		seen[tag] = true

		if len(spec.Patterns) == 0 {
			return nil, fmt.Errorf("source %q has no patterns", tag)
		}
		rule := Rule{Tag: tag}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("source %q: invalid pattern %q: %w", tag, p, err)
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		rules = append(rules, rule)
	}
	return &Classifier{rules: rules}, nil
}

// MustDefault returns a Classifier built from DefaultRules.
func MustDefault() *Classifier {
	c, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Tags returns the recognized source tags in rule order.
func (c *Classifier) Tags() []model.Source {
	tags := make([]model.Source, len(c.rules))
	for i, r := range c.rules {
		tags[i] = r.Tag
	}
	return tags
}

// Known reports whether tag is one of the recognized source tags.
func (c *Classifier) Known(tag model.Source) bool {
	for _, r := range c.rules {
		if r.Tag == tag {
			return true
		}
	}
	return false
}

// ParseTags returns the recognized tags among words, lowercased and
// deduplicated. Unknown words are returned separately.
func (c *Classifier) ParseTags(words []string) (model.SourceSet, []string) {
	known := model.NewSourceSet()
	var unknown []string
	for _, w := range words {
		tag := model.Source(strings.ToLower(strings.TrimSpace(w)))
		if tag == "" {
			continue
		}
		if c.Known(tag) {
			known[tag] = struct{}{}
			continue
		}
		unknown = append(unknown, w)
	}
	return known, unknown
}

// Detect returns the source of an item with the given title and link.
func (c *Classifier) Detect(title, link string) model.Source {
	hay := title + " " + link
	for _, r := range c.rules {
		for _, re := range r.Patterns {
			if re.MatchString(hay) {
				return r.Tag
			}
		}
	}
	return model.SourceOther
}

// Classify normalizes a raw entry. It returns false when the entry has no
// usable title, link or key.
func (c *Classifier) Classify(e model.RawEntry) (model.Offer, bool) {
	title := Clean(e.Title)
	link := Clean(e.Link)
	if title == "" || link == "" {
		return model.Offer{}, false
	}
	key := EntryKey(e)
	if key == "" {
		return model.Offer{}, false
	}
	return model.Offer{
		Key:    key,
		Title:  title,
		Source: c.Detect(title, link),
		Link:   link,
	}, true
}

// EntryKey returns the dedup identity of an entry: its feed identifier if
// present, then its link, then its title.
func EntryKey(e model.RawEntry) string {
	for _, v := range []string{e.GUID, e.Link, e.Title} {
		if k := Clean(v); k != "" {
			return k
		}
	}
	return ""
}

// Clean collapses runs of whitespace and trims the result.
func Clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
