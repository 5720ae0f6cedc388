package detector

import (
	"regexp"
	"testing"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head>
  <script>window.cfg = {}</script>
  <script type="module" crossorigin src="/assets/index-4f3a.js"></script>
  <link rel="stylesheet" href="/assets/index.css">
  <script data-src="/lazy.js"></script>
</head>
<body>
  <script src='/assets/vendor.js'></script><script defer src="https://cdn.example.com/analytics.js"></script>
</body>
</html>`

func TestRegexExtractor_DefaultPattern(t *testing.T) {
	e, err := NewRegexExtractor(DefaultScriptPattern)
	require.NoError(t, err)

	sources, err := e.Extract(samplePage)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/assets/index-4f3a.js",
		"/assets/vendor.js",
		"https://cdn.example.com/analytics.js",
	}, sources)
}

func TestRegexExtractor_IsStateless(t *testing.T) {
	e, err := NewRegexExtractor(DefaultScriptPattern)
	require.NoError(t, err)

	first, _ := e.Extract(samplePage)
	second, _ := e.Extract(samplePage)
	assert.Equal(t, first, second)

	other, _ := e.Extract(`<script src="/only.js"></script>`)
	assert.Equal(t, []string{"/only.js"}, other)
}

func TestRegexExtractor_SkipsMissingGroup(t *testing.T) {
	pattern := regexp.MustCompile(`<script(?:\s+src="(?P<src>[^"]+)")?>`)
	e, err := NewRegexExtractor(pattern)
	require.NoError(t, err)

	sources, err := e.Extract(`<script><script src="/a.js"><script>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.js"}, sources)
}

func TestRegexExtractor_RequiresSrcGroup(t *testing.T) {
	_, err := NewRegexExtractor(regexp.MustCompile(`<script src="([^"]+)"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = NewRegexExtractor(nil)
	assert.Error(t, err)
}

func TestSelectorExtractor(t *testing.T) {
	sources, err := NewSelectorExtractor().Extract(samplePage)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/assets/index-4f3a.js",
		"/assets/vendor.js",
		"https://cdn.example.com/analytics.js",
	}, sources)
}

func TestNewExtractor(t *testing.T) {
	opts := NewDefaultOptions().withDefaults()
	e, err := newExtractor(opts)
	require.NoError(t, err)
	assert.IsType(t, &RegexExtractor{}, e)

	opts.Extraction = ExtractionSelector
	e, err = newExtractor(opts)
	require.NoError(t, err)
	assert.IsType(t, &SelectorExtractor{}, e)
}
