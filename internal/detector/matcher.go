package detector

import (
	"regexp"
	"strings"

	"github.com/aleister1102/deploywatch/internal/common"
)

// ExcludeKind tags which exclusion strategy an ExcludeSpec carries.
type ExcludeKind int

const (
	ExcludeNone ExcludeKind = iota
	ExcludeGlobList
	ExcludeSingleRegexp
)

// ExcludeSpec is either a list of globs or a single regular expression, never both.
type ExcludeSpec struct {
	kind    ExcludeKind
	globs   []string
	pattern *regexp.Regexp
}

// ExcludeGlobs excludes a source when any of the globs matches it.
func ExcludeGlobs(globs ...string) ExcludeSpec {
	return ExcludeSpec{kind: ExcludeGlobList, globs: append([]string(nil), globs...)}
}

// ExcludeRegexp excludes a source when pattern matches anywhere in it.
func ExcludeRegexp(pattern *regexp.Regexp) ExcludeSpec {
	return ExcludeSpec{kind: ExcludeSingleRegexp, pattern: pattern}
}

func (s ExcludeSpec) Kind() ExcludeKind {
	return s.kind
}

// Matcher reports whether a raw script source is excluded.
type Matcher interface {
	Match(src string) bool
}

// NewMatcher picks the strategy from the exclusion kind.
func NewMatcher(spec ExcludeSpec) (Matcher, error) {
	switch spec.kind {
	case ExcludeGlobList:
		return NewGlobMatcher(spec.globs)
	case ExcludeSingleRegexp:
		if spec.pattern == nil {
			return nil, common.NewValidationError("exclude_regex", nil, "pattern is required")
		}
		return &RegexpMatcher{pattern: spec.pattern}, nil
	default:
		return noneMatcher{}, nil
	}
}

type noneMatcher struct{}

func (noneMatcher) Match(string) bool { return false }

// RegexpMatcher searches the source with an unanchored regular expression.
type RegexpMatcher struct {
	pattern *regexp.Regexp
}

func (m *RegexpMatcher) Match(src string) bool {
	return m.pattern.MatchString(src)
}

// GlobMatcher matches whole sources, case-insensitively. '*' spans any run of
// characters including '/', '?' is exactly one character.
type GlobMatcher struct {
	patterns []*regexp.Regexp
}

func NewGlobMatcher(globs []string) (*GlobMatcher, error) {
	m := &GlobMatcher{patterns: make([]*regexp.Regexp, 0, len(globs))}
	for _, g := range globs {
		if g == "" {
			return nil, common.NewValidationError("exclude_scripts", g, "glob must not be empty")
		}
		re, err := regexp.Compile(globToRegexp(g))
		if err != nil {
			return nil, common.NewValidationError("exclude_scripts", g, err.Error())
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *GlobMatcher) Match(src string) bool {
	for _, re := range m.patterns {
		if re.MatchString(src) {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("(?is)^")
	literal := 0
	for i, r := range glob {
		if r != '*' && r != '?' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(glob[literal:i]))
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(".")
		}
		literal = i + 1
	}
	b.WriteString(regexp.QuoteMeta(glob[literal:]))
	b.WriteString("$")
	return b.String()
}

// filterSources drops excluded sources and tags the rest with their entry point.
func filterSources(entryPoint string, sources []string, m Matcher) []Reference {
	refs := make([]Reference, 0, len(sources))
	for _, src := range sources {
		if m.Match(src) {
			continue
		}
		refs = append(refs, Reference{EntryPoint: entryPoint, Source: src})
	}
	return refs
}
