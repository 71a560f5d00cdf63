package htmlanalyzer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

type DomAnalyzer struct {
	metadataSink metadata.MetadataSink
	params       ExtractParam
}

func NewDomAnalyzer(metadataSink metadata.MetadataSink, params ExtractParam) DomAnalyzer {
	return DomAnalyzer{
		metadataSink: metadataSink,
		params:       params,
	}
}

func (d *DomAnalyzer) Extract(pageUrl url.URL, htmlByte []byte) (AnalysisResult, failure.ClassifiedError) {
	result, err := d.extract(pageUrl, htmlByte)
	if err != nil {
		d.metadataSink.RecordError(
			time.Now(),
			"htmlanalyzer",
			"DomAnalyzer.Extract",
			mapAnalysisErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, pageUrl.String()),
			},
		)
		return AnalysisResult{}, err
	}
	return result, nil
}

func (d *DomAnalyzer) extract(pageUrl url.URL, htmlByte []byte) (AnalysisResult, *AnalysisError) {
	doc, err := html.Parse(bytes.NewReader(htmlByte))
	if err != nil {
		return AnalysisResult{}, &AnalysisError{
			Message:   fmt.Sprintf("failed to parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
	}
	if !isValidHTML(doc) {
		return AnalysisResult{}, &AnalysisError{
			Message:   "input is not a valid HTML document",
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
	}

	gq := goquery.NewDocumentFromNode(doc)

	contentNode := findContentNode(doc, d.params)
	if contentNode == nil {
		return AnalysisResult{}, &AnalysisError{
			Message:   "no meaningful content container found",
			Retryable: false,
			Cause:     ErrCauseNoContent,
		}
	}

	return AnalysisResult{
		Text:     flattenText(contentNode),
		Title:    extractTitle(gq),
		Meta:     extractMeta(gq),
		Outlinks: extractOutlinks(contentNode, pageUrl),
	}, nil
}

// skippedTextElements never contribute to flattenText's output even when
// a content container containing them slips past all three extraction
// layers: their text is code/markup, not page content.
var skippedTextElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// flattenText concatenates every text node under contentNode, trimming
// each node and joining the non-empty ones with a single space.
// Whitespace inside a single text node is kept as it is.
func flattenText(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTextElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}

func extractTitle(gq *goquery.Document) string {
	return strings.TrimSpace(gq.Find("title").First().Text())
}

func extractMeta(gq *goquery.Document) map[string]string {
	meta := make(map[string]string)
	gq.Find("meta[name]").Each(func(i int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			return
		}
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		meta[strings.ToLower(name)] = content
	})
	return meta
}

// extractOutlinks finds every <a href> under contentNode, resolves it
// against pageUrl (so relative links become absolute), and drops
// fragment-only or scheme-invalid references. Deduplicated by the
// resolved URL's String() form; no further canonicalization is applied.
func extractOutlinks(contentNode *html.Node, pageUrl url.URL) []url.URL {
	gq := goquery.NewDocumentFromNode(contentNode)

	seen := make(map[string]bool)
	var out []url.URL

	gq.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		parsed, err := url.Parse(href)
		if err != nil {
			return
		}

		resolved := pageUrl.ResolveReference(parsed)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, *resolved)
	})

	return out
}
