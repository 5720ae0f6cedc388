package detector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/deploywatch/internal/common"
)

// DefaultScriptPattern finds the src attribute of every opening script tag.
var DefaultScriptPattern = regexp.MustCompile(`(?i)<script[^>]*?\ssrc\s*=\s*["'](?P<src>[^"'>\r\n]+)`)

const srcGroup = "src"

// Extractor pulls raw script sources out of an HTML document, in document order.
type Extractor interface {
	Extract(html string) ([]string, error)
}

// RegexExtractor evaluates a pattern with a named "src" group over the whole document.
type RegexExtractor struct {
	pattern  *regexp.Regexp
	srcIndex int
}

// NewRegexExtractor fails when the pattern has no "src" group.
func NewRegexExtractor(pattern *regexp.Regexp) (*RegexExtractor, error) {
	if pattern == nil {
		return nil, common.NewValidationError("script_regex", nil, "pattern is required")
	}
	idx := pattern.SubexpIndex(srcGroup)
	if idx < 0 {
		return nil, common.NewValidationError("script_regex", pattern.String(), "pattern must define a named group 'src'")
	}
	return &RegexExtractor{pattern: pattern, srcIndex: idx}, nil
}

// Extract never fails; every call scans from the start of html.
func (e *RegexExtractor) Extract(html string) ([]string, error) {
	matches := e.pattern.FindAllStringSubmatchIndex(html, -1)
	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		start, end := m[2*e.srcIndex], m[2*e.srcIndex+1]
		if start < 0 || start == end {
			continue
		}
		sources = append(sources, html[start:end])
	}
	return sources, nil
}

// SelectorExtractor parses the document and reads script[src] elements.
type SelectorExtractor struct{}

func NewSelectorExtractor() *SelectorExtractor {
	return &SelectorExtractor{}
}

func (e *SelectorExtractor) Extract(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, common.WrapError(err, "failed to parse HTML")
	}

	var sources []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			sources = append(sources, src)
		}
	})
	return sources, nil
}

func newExtractor(opts Options) (Extractor, error) {
	if opts.Extraction == ExtractionSelector {
		return NewSelectorExtractor(), nil
	}
	return NewRegexExtractor(opts.ScriptPattern)
}
