package htmlanalyzer

import (
	"net/url"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

// HtmlAnalyzer is the black-box content extractor handed raw page bytes and
// the page's own URL (used to resolve relative outlinks). It never fetches
// or retries; it only parses and scores.
type HtmlAnalyzer interface {
	Extract(pageUrl url.URL, htmlByte []byte) (AnalysisResult, failure.ClassifiedError)
}

var _ HtmlAnalyzer = (*DomAnalyzer)(nil)
