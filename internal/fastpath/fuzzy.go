package fastpath

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultFuzzyThreshold = 0.88

// Normalizer rewrites tokens that sound like a known keyword but were
// transcribed differently ("pawse" for "pause", "plei" for "play"). STT output
// for short command words is noisy; phonetic matching recovers the rule hit
// without loosening the regexes themselves.
type Normalizer struct {
	entries   []vocabEntry
	exact     map[string]bool
	threshold float64
}

type vocabEntry struct {
	word      string
	primary   string
	secondary string
}

// NormalizerOption is a functional option for configuring a Normalizer.
type NormalizerOption func(*Normalizer)

// WithThreshold sets the minimum Jaro-Winkler similarity a phonetic candidate
// must reach to replace a token. Default 0.88.
func WithThreshold(threshold float64) NormalizerOption {
	return func(n *Normalizer) { n.threshold = threshold }
}

// NewNormalizer builds a Normalizer over the given keyword vocabulary.
// Metaphone codes are precomputed once per keyword.
func NewNormalizer(vocabulary []string, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		exact:     make(map[string]bool, len(vocabulary)),
		threshold: defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(n)
	}

	for _, w := range vocabulary {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || n.exact[w] {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(w)
		n.entries = append(n.entries, vocabEntry{word: w, primary: primary, secondary: secondary})
		n.exact[w] = true
	}
	return n
}

// Normalize replaces tokens that phonetically match a vocabulary keyword with
// that keyword. Tokens already in the vocabulary, and tokens shorter than
// three characters, pass through untouched.
func (n *Normalizer) Normalize(text string) string {
	fields := strings.Fields(text)
	changed := false

	for i, tok := range fields {
		stripped := strings.TrimRight(tok, ".,!?")
		punct := tok[len(stripped):]
		lower := strings.ToLower(stripped)
		if len(lower) < 3 || n.exact[lower] {
			continue
		}
		if repl, ok := n.bestMatch(lower); ok {
			fields[i] = repl + punct
			changed = true
		}
	}

	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// bestMatch returns the vocabulary word with the highest Jaro-Winkler score
// among those sharing a metaphone code with token, provided it clears the
// threshold.
func (n *Normalizer) bestMatch(token string) (string, bool) {
	primary, secondary := matchr.DoubleMetaphone(token)

	best := ""
	bestScore := 0.0
	for _, e := range n.entries {
		if !codesOverlap(primary, secondary, e.primary, e.secondary) {
			continue
		}
		score := matchr.JaroWinkler(token, e.word, false)
		if score > bestScore {
			best, bestScore = e.word, score
		}
	}
	if bestScore < n.threshold {
		return "", false
	}
	return best, true
}

// codesOverlap reports whether any non-empty metaphone code is shared between
// the two (primary, secondary) pairs.
func codesOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range [2]string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || (s2 != "" && a == s2) {
			return true
		}
	}
	return false
}
