package textutil

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// TermVector is a term-frequency vector used to score passages against a query.
type TermVector struct {
	terms map[string]float64
	norm  float64
}

// NewTermVector builds a vector from text. Returns nil if the text has no
// usable tokens.
func NewTermVector(text string) *TermVector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return newVector(counts)
}

func newVector(weights map[string]float64) *TermVector {
	var norm float64
	for _, w := range weights {
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	return &TermVector{terms: weights, norm: math.Sqrt(norm)}
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// digit or combining mark. Tokens shorter than three runes are dropped.
// Combining marks are kept so Devanagari and Tamil words stay whole.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	terms := fields[:0]
	for _, token := range fields {
		if len([]rune(token)) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TermCount returns the number of distinct terms.
func (v *TermVector) TermCount() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// WithIDF returns a copy weighted by idf. Terms absent from idf keep their weight.
func (v *TermVector) WithIDF(idf map[string]float64) *TermVector {
	if v == nil || len(idf) == 0 {
		return v
	}
	weighted := make(map[string]float64, len(v.terms))
	for term, count := range v.terms {
		w := count
		if idfVal, ok := idf[term]; ok {
			w *= idfVal
		}
		if w == 0 {
			continue
		}
		weighted[term] = w
	}
	return newVector(weighted)
}

// Corpus collects document frequencies for IDF weighting.
type Corpus struct {
	docCount int
	docFreq  map[string]int
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{docFreq: make(map[string]int)}
}

// Add registers a vector's distinct terms.
func (c *Corpus) Add(v *TermVector) {
	if c == nil || v == nil {
		return
	}
	c.docCount++
	for term := range v.terms {
		c.docFreq[term]++
	}
}

// IDF computes log((N+1)/(1+df)) for each term.
func (c *Corpus) IDF() map[string]float64 {
	if c == nil || c.docCount == 0 {
		return nil
	}
	idf := make(map[string]float64, len(c.docFreq))
	n := float64(c.docCount)
	for term, df := range c.docFreq {
		idf[term] = math.Log((n + 1) / (1 + float64(df)))
	}
	return idf
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is nil.
func CosineSimilarity(a, b *TermVector) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for term, w := range a.terms {
		if other, ok := b.terms[term]; ok {
			dot += w * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// RankPassages returns up to limit passages ordered by TF-IDF similarity to
// query. Ties keep input order, and passages with no overlap are dropped, so
// the result is deterministic for a given input.
func RankPassages(query string, passages []string, limit int) []string {
	q := NewTermVector(query)
	if q == nil || len(passages) == 0 {
		return nil
	}
	vectors := make([]*TermVector, len(passages))
	corpus := NewCorpus()
	for i, p := range passages {
		vectors[i] = NewTermVector(p)
		corpus.Add(vectors[i])
	}
	// Smooth so a term present in every passage still counts.
	idf := corpus.IDF()
	for term, w := range idf {
		idf[term] = w + 1
	}
	q = q.WithIDF(idf)

	type scored struct {
		index int
		score float64
	}
	var ranked []scored
	for i, v := range vectors {
		if score := CosineSimilarity(q, v.WithIDF(idf)); score > 0 {
			ranked = append(ranked, scored{index: i, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = passages[r.index]
	}
	return out
}
