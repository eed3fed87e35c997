package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"offerdex/pkg/model"
)

// DefaultMinTokenLength is the shortest keyword the text index keeps.
const DefaultMinTokenLength = 3

// stopWords are common words excluded from the text index and from
// queries, so they never act as a search constraint.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// tokenize normalizes free text into index keywords: case-folded, split on
// non-alphanumeric boundaries, stop words and short tokens dropped.
// Tokens are returned deduplicated, in first-seen order.
func tokenize(text string, minLen int) []string {
	if minLen <= 0 {
		minLen = DefaultMinTokenLength
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
	}
	return tokens
}

// idSet is a set of offering identities.
type idSet map[model.OfferingID]struct{}

func (s idSet) clone() idSet {
	out := make(idSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// textIndex is the inverted keyword index over the descriptive offering
// fields. It is maintained incrementally on every mutation; Rebuild on the
// registry reconstructs it from scratch as a recovery path.
//
// The index carries no lock of its own. The registry serializes access.
type textIndex struct {
	minTokenLen int
	postings    map[string]idSet
	tokensByID  map[model.OfferingID][]string
}

func newTextIndex(minTokenLen int) *textIndex {
	if minTokenLen <= 0 {
		minTokenLen = DefaultMinTokenLength
	}
	return &textIndex{
		minTokenLen: minTokenLen,
		postings:    make(map[string]idSet),
		tokensByID:  make(map[model.OfferingID][]string),
	}
}

// Index replaces the keyword entries of id with those derived from o.
func (ti *textIndex) Index(id model.OfferingID, o *model.Offering) {
	ti.Remove(id)

	var tokens []string
	seen := make(map[string]struct{})
	for _, field := range o.SearchableText() {
		for _, tok := range tokenize(field, ti.minTokenLen) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return
	}

	for _, tok := range tokens {
		set, ok := ti.postings[tok]
		if !ok {
			set = make(idSet)
			ti.postings[tok] = set
		}
		set[id] = struct{}{}
	}
	ti.tokensByID[id] = tokens
}

// Remove drops every keyword entry of id. Unknown ids are a no-op.
func (ti *textIndex) Remove(id model.OfferingID) {
	tokens, ok := ti.tokensByID[id]
	if !ok {
		return
	}
	for _, tok := range tokens {
		set := ti.postings[tok]
		delete(set, id)
		if len(set) == 0 {
			delete(ti.postings, tok)
		}
	}
	delete(ti.tokensByID, id)
}

// Candidates returns the identities whose token set contains every token
// of the query text. The second return is false when the text normalizes
// to no usable tokens, meaning the text imposes no constraint.
//
// Intersection starts from the rarest token so the working set only
// shrinks.
func (ti *textIndex) Candidates(text string) (idSet, bool) {
	tokens := tokenize(text, ti.minTokenLen)
	if len(tokens) == 0 {
		return nil, false
	}

	var rarest idSet
	for _, tok := range tokens {
		set, ok := ti.postings[tok]
		if !ok {
			return idSet{}, true
		}
		if rarest == nil || len(set) < len(rarest) {
			rarest = set
		}
	}

	result := rarest.clone()
	for _, tok := range tokens {
		set := ti.postings[tok]
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
		if len(result) == 0 {
			break
		}
	}
	return result, true
}

// QueryTokens exposes the normalized tokens of a query text.
func (ti *textIndex) QueryTokens(text string) []string {
	return tokenize(text, ti.minTokenLen)
}

// HasAllTokens reports whether the indexed token set of id contains every
// given token. An empty token list always matches.
func (ti *textIndex) HasAllTokens(id model.OfferingID, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	indexed, ok := ti.tokensByID[id]
	if !ok {
		return false
	}
	set := make(map[string]struct{}, len(indexed))
	for _, t := range indexed {
		set[t] = struct{}{}
	}
	for _, t := range tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// TokenCount returns the number of distinct indexed keywords.
func (ti *textIndex) TokenCount() int {
	return len(ti.postings)
}

// Clear empties the index.
func (ti *textIndex) Clear() {
	ti.postings = make(map[string]idSet)
	ti.tokensByID = make(map[model.OfferingID][]string)
}
