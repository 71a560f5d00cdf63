package htmlanalyzer

// knownContentSelectors contains framework-specific content container
// selectors. Used as Layer 2 when semantic containers (Layer 1) fail. A
// hidden service built on a generic static-site generator or forum
// software tends to fall into one of these buckets.
var knownContentSelectors = map[string][]string{
	"generic": {
		".content",
		".post-content",
		".entry-content",
		".markdown-body",
		"#content",
		".main-content",
	},
	"forum": {
		".postbody",
		".message-content",
		".post-message",
	},
	"wiki": {
		"#mw-content-text",
		".wiki-content",
	},
	"blog": {
		".article-content",
		".entry-content",
	},
}

// allSelectors returns a flattened, prioritized list of all known content
// selectors. Generic selectors are checked first.
func allSelectors() []string {
	order := []string{"generic", "wiki", "forum", "blog"}

	var out []string
	seen := make(map[string]bool)
	for _, category := range order {
		for _, selector := range knownContentSelectors[category] {
			if !seen[selector] {
				seen[selector] = true
				out = append(out, selector)
			}
		}
	}
	return out
}
