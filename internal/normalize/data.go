package normalize

// Token is a single normalized word and the position (0-based, in
// document order) it occupied in the source text. Position is monotonic
// across a single Normalize call: a re-run of the same input always
// reproduces the same positions.
type Token struct {
	Term     string
	Position int
}

// TokenStream is the ordered sequence of Tokens produced by one
// Normalize call.
type TokenStream []Token

// stopWords is a fixed, compile-time list. It is never extended at
// runtime so that Normalize stays pure and deterministic.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"and": {}, "or": {}, "but": {}, "nor": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "from": {},
	"with": {}, "by": {}, "as": {}, "into": {}, "onto": {}, "over": {}, "under": {},
	"this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "i": {}, "you": {}, "he": {}, "she": {}, "we": {}, "they": {},
	"not": {}, "no": {}, "do": {}, "does": {}, "did": {},
	"have": {}, "has": {}, "had": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "shall": {}, "should": {},
}
