package knowledge

import (
	"math"
	"strings"
	"unicode"
)

// Tokenize lower-cases text and splits it into terms: runs of letters or
// digits of at least two characters, plus overlapping bigrams for runs of
// Han, Hiragana, Katakana or Hangul characters (which are not space separated).
func Tokenize(text string) []string {
	var (
		terms []string
		word  []rune
		cjk   []rune
	)
	flushWord := func() {
		if len(word) >= 2 {
			terms = append(terms, string(word))
		}
		word = word[:0]
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			terms = append(terms, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				terms = append(terms, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()
	return terms
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Scorer computes TF-IDF cosine similarity between a query and a corpus.
// Document frequencies come from the corpus only, with smoothed
// idf = ln((1+n)/(1+df)) + 1 and L2-normalised vectors.
type Scorer struct {
	idf  map[string]float64
	docs []map[string]float64
}

func NewScorer(corpus []string) *Scorer {
	n := len(corpus)
	df := make(map[string]int)
	counts := make([]map[string]int, n)
	for i, doc := range corpus {
		tf := termCounts(Tokenize(doc))
		counts[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log(float64(1+n)/float64(1+d)) + 1
	}

	s := &Scorer{idf: idf, docs: make([]map[string]float64, n)}
	for i, tf := range counts {
		s.docs[i] = s.weigh(tf)
	}
	return s
}

// Scores returns one similarity in [0,1] per corpus document, in corpus order.
// Query terms unseen in the corpus carry no weight.
func (s *Scorer) Scores(query string) []float64 {
	q := s.weigh(termCounts(Tokenize(query)))
	out := make([]float64, len(s.docs))
	if len(q) == 0 {
		return out
	}
	for i, d := range s.docs {
		var dot float64
		small, large := q, d
		if len(large) < len(small) {
			small, large = large, small
		}
		for term, w := range small {
			dot += w * large[term]
		}
		out[i] = dot
	}
	return out
}

func (s *Scorer) weigh(tf map[string]int) map[string]float64 {
	vec := make(map[string]float64, len(tf))
	var norm float64
	for term, c := range tf {
		idf, ok := s.idf[term]
		if !ok {
			continue
		}
		w := float64(c) * idf
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return map[string]float64{}
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func termCounts(terms []string) map[string]int {
	m := make(map[string]int, len(terms))
	for _, t := range terms {
		m[t]++
	}
	return m
}
