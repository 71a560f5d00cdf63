package normalize_test

import (
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/stretchr/testify/assert"
)

func TestNormalize_LowercasesAndStripsPunctuation(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	stream := n.Normalize("Hello, World! This is a TEST.")

	var terms []string
	for _, tok := range stream {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"hello", "world", "test"}, terms)
}

func TestNormalize_PositionsAreMonotonicAndZeroBased(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	stream := n.Normalize("alpha beta gamma")

	for i, tok := range stream {
		assert.Equal(t, i, tok.Position)
	}
}

func TestNormalize_DropsStopWords(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	stream := n.Normalize("the quick fox and the lazy dog")

	var terms []string
	for _, tok := range stream {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"quick", "fox", "lazy", "dog"}, terms)
}

func TestNormalize_StopWordOnlyDocumentYieldsEmptyStream(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	stream := n.Normalize("the a an of in on")
	assert.Empty(t, stream)
}

func TestNormalize_EmptyInputYieldsEmptyStream(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	assert.Empty(t, n.Normalize(""))
}

func TestNormalize_IsIdempotentOnItsOwnJoinedOutput(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	first := n.Normalize("Tor Hidden-Service: Onion/Routing #2024")

	var joined string
	for i, tok := range first {
		if i > 0 {
			joined += " "
		}
		joined += tok.Term
	}

	second := n.Normalize(joined)
	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Term, second[i].Term)
	}
}

func TestNormalize_UnderscoreIsWordCharacter(t *testing.T) {
	n := normalize.NewDefaultNormalizer()
	stream := n.Normalize("snake_case stays_together")

	var terms []string
	for _, tok := range stream {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"snake_case", "stays_together"}, terms)
}
