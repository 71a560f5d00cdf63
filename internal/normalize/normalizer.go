package normalize

import (
	"regexp"
	"strings"
)

/*
Responsibilities
- Lowercase text via Unicode simple case folding
- Collapse non-word runs to a single separator
- Tokenize and drop stop-words
- Produce an ordered token stream with monotonic positions

The steps and their order are fixed: changing the regex, the stop-word
list, or the step order changes every DocId's posting list, so this is
the one place in the pipeline where "just tweak it" is not free.
*/

var nonWordRun = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Normalizer turns raw extracted text into the ordered token stream the
// InvertedIndex and QueryEngine both consume.
type Normalizer interface {
	Normalize(text string) TokenStream
}

type DefaultNormalizer struct{}

func NewDefaultNormalizer() DefaultNormalizer {
	return DefaultNormalizer{}
}

func (DefaultNormalizer) Normalize(text string) TokenStream {
	return normalize(text)
}

func normalize(text string) TokenStream {
	lowered := strings.ToLower(text)
	collapsed := nonWordRun.ReplaceAllString(lowered, " ")
	fields := strings.Split(collapsed, " ")

	stream := make(TokenStream, 0, len(fields))
	position := 0
	for _, field := range fields {
		if field == "" {
			continue
		}
		if _, isStopWord := stopWords[field]; isStopWord {
			continue
		}
		stream = append(stream, Token{Term: field, Position: position})
		position++
	}

	return stream
}
