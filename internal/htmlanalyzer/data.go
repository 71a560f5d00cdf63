package htmlanalyzer

import "net/url"

// ExtractParam tunes the text-density heuristic of the third extraction
// layer. Mirrors the teacher's extractor.ExtractParam.
type ExtractParam struct {
	LinkDensityThreshold float64
	BodySpecificityBias  float64
}

func NewExtractParam(linkDensityThreshold, bodySpecificityBias float64) ExtractParam {
	return ExtractParam{
		LinkDensityThreshold: linkDensityThreshold,
		BodySpecificityBias:  bodySpecificityBias,
	}
}

// AnalysisResult is the flattened output handed to the Normalizer and
// DocStore: visible text, the document title, a handful of meta tags, and
// the outbound links discovered in the content container, already resolved
// against the page's own URL.
type AnalysisResult struct {
	Text     string
	Title    string
	Meta     map[string]string
	Outlinks []url.URL
}

// NewAnalysisResultForTest builds an AnalysisResult without going through
// DOM parsing, for use by callers that only need to exercise downstream
// stages.
func NewAnalysisResultForTest(text, title string, meta map[string]string, outlinks []url.URL) AnalysisResult {
	return AnalysisResult{
		Text:     text,
		Title:    title,
		Meta:     meta,
		Outlinks: outlinks,
	}
}
