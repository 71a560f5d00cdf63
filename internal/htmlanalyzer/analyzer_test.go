package htmlanalyzer_test

import (
	"net/url"
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/htmlanalyzer"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func newAnalyzer() htmlanalyzer.DomAnalyzer {
	return htmlanalyzer.NewDomAnalyzer(&metadata.NoopSink{}, htmlanalyzer.NewExtractParam(0.5, 0.6))
}

func TestDomAnalyzer_Extract_SemanticMain(t *testing.T) {
	analyzer := newAnalyzer()
	pageUrl := mustParseURL(t, "http://forumxyz.onion/thread/1")

	doc := []byte(`<html><head><title>Thread One</title>
<meta name="description" content="a forum thread"></head>
<body>
<nav><a href="/">home</a></nav>
<main>
<h1>Welcome</h1>
<p>This is the body of the very first post in the thread, long enough to pass the content threshold easily.</p>
<a href="/thread/2">next thread</a>
<a href="other.onion/page">external</a>
</main>
</body></html>`)

	result, err := analyzer.Extract(pageUrl, doc)
	require.Nil(t, err)
	assert.Equal(t, "Thread One", result.Title)
	assert.Equal(t, "a forum thread", result.Meta["description"])
	assert.Contains(t, result.Text, "Welcome")
	assert.Contains(t, result.Text, "very first post")
	assert.NotContains(t, result.Text, "home")

	require.Len(t, result.Outlinks, 2)
	assert.Equal(t, "http://forumxyz.onion/thread/2", result.Outlinks[0].String())
}

func TestDomAnalyzer_Extract_NotHTML(t *testing.T) {
	analyzer := newAnalyzer()
	pageUrl := mustParseURL(t, "http://forumxyz.onion/")

	_, err := analyzer.Extract(pageUrl, []byte("not a document at all"))
	require.NotNil(t, err)
}

func TestDomAnalyzer_Extract_NoMeaningfulContent(t *testing.T) {
	analyzer := newAnalyzer()
	pageUrl := mustParseURL(t, "http://forumxyz.onion/")

	doc := []byte(`<html><head><title>Empty</title></head><body><nav><a href="/">x</a></nav></body></html>`)
	_, err := analyzer.Extract(pageUrl, doc)
	require.NotNil(t, err)
}
