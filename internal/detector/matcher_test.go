package detector

import (
	"errors"
	"regexp"
	"testing"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobMatcher(t *testing.T) {
	tests := []struct {
		glob  string
		src   string
		match bool
	}{
		{"/assets/vendor/*.js", "/assets/vendor/a.js", true},
		{"/assets/vendor/*.js", "/assets/vendor/sub/a.js", true},
		{"/assets/vendor/*.js", "/assets/vendor/.js", true},
		{"/assets/vendor/*.js", "/assets/vendor/a.jsx", false},
		{"/assets/vendor/*.js", "/cdn/assets/vendor/a.js", false},
		{"*.js", "https://cdn.example.com/x.js", true},
		{"/app.?.js", "/app.1.js", true},
		{"/app.?.js", "/app.12.js", false},
		{"/app.?.js", "/app..js", false},
		{"/main.js", "/mainxjs", false},
		{"/MAIN.JS", "/main.js", true},
		{"/lib/[x]+.js", "/lib/[x]+.js", true},
		{"/lib/[x]+.js", "/lib/x.js", false},
		{"/polyfill*", "/polyfill-legacy.min.js?v=3", true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+" "+tt.src, func(t *testing.T) {
			m, err := NewGlobMatcher([]string{tt.glob})
			require.NoError(t, err)
			assert.Equal(t, tt.match, m.Match(tt.src))
		})
	}
}

func TestGlobMatcher_AnyPattern(t *testing.T) {
	m, err := NewGlobMatcher([]string{"/a.js", "/vendor/*"})
	require.NoError(t, err)

	assert.True(t, m.Match("/a.js"))
	assert.True(t, m.Match("/vendor/react.js"))
	assert.False(t, m.Match("/b.js"))
}

func TestGlobMatcher_EmptyPattern(t *testing.T) {
	_, err := NewGlobMatcher([]string{""})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestRegexpMatcher_IsUnanchored(t *testing.T) {
	m, err := NewMatcher(ExcludeRegexp(regexp.MustCompile(`vendor`)))
	require.NoError(t, err)

	assert.True(t, m.Match("/assets/vendor/a.js"))
	assert.False(t, m.Match("/assets/app.js"))
}

func TestNewMatcher_ModesAreExclusive(t *testing.T) {
	// "*.js" as a regexp is malformed, as a glob it matches every script.
	globs, err := NewMatcher(ExcludeGlobs("*.js"))
	require.NoError(t, err)
	assert.True(t, globs.Match("/a.js"))

	// "a.js" as a regexp treats the dot as a wildcard and is unanchored.
	re, err := NewMatcher(ExcludeRegexp(regexp.MustCompile(`a.js`)))
	require.NoError(t, err)
	assert.True(t, re.Match("/static/aXjs/main.css"))

	globLiteral, err := NewMatcher(ExcludeGlobs("a.js"))
	require.NoError(t, err)
	assert.False(t, globLiteral.Match("/static/aXjs/main.css"))
	assert.False(t, globLiteral.Match("/a.js"))
}

func TestNewMatcher_NoSpecExcludesNothing(t *testing.T) {
	m, err := NewMatcher(ExcludeSpec{})
	require.NoError(t, err)
	assert.False(t, m.Match("/anything.js"))
	assert.Equal(t, ExcludeNone, ExcludeSpec{}.Kind())
}

func TestNewMatcher_NilRegexp(t *testing.T) {
	_, err := NewMatcher(ExcludeRegexp(nil))
	var vErr *common.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "exclude_regex", vErr.Field)
}

func TestFilterSources(t *testing.T) {
	m, err := NewGlobMatcher([]string{"/vendor/*"})
	require.NoError(t, err)

	refs := filterSources("/sub/index.html", []string{"/vendor/a.js", "/app.js"}, m)
	assert.Equal(t, []Reference{{EntryPoint: "/sub/index.html", Source: "/app.js"}}, refs)
}
