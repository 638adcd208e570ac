package voice

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// jwThreshold is the Jaro-Winkler similarity above which a leading token run
// counts as the wake phrase even without a phonetic code match.
const jwThreshold = 0.86

// phoneticJWThreshold is the looser similarity floor applied when the tokens
// already share a Double Metaphone code. STT mangles names badly ("hey
// sightline" arrives as "hay site line"), so a phonetic hit plus rough
// string similarity is accepted.
const phoneticJWThreshold = 0.6

// WakeGate decides whether a transcript addresses the assistant. The phrase
// is matched against the leading words of the transcript only; mentioning
// the wake word mid-sentence does not open a turn.
type WakeGate struct {
	tokens []string
	codes  map[string]struct{}
}

// NewWakeGate builds a gate for phrase. An empty phrase returns nil, which
// [WakeGate.Match] treats as match-everything.
func NewWakeGate(phrase string) *WakeGate {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
	if len(tokens) == 0 {
		return nil
	}
	return &WakeGate{tokens: tokens, codes: metaphoneCodes(tokens)}
}

// Match reports whether transcript opens with the wake phrase, comparing the
// same number of leading words plus one for split or merged tokens.
func (g *WakeGate) Match(transcript string) bool {
	if g == nil {
		return true
	}
	words := strings.Fields(strings.ToLower(transcript))
	if len(words) == 0 {
		return false
	}

	max := len(g.tokens) + 1
	if max > len(words) {
		max = len(words)
	}
	phrase := strings.Join(g.tokens, " ")
	concat := strings.Join(g.tokens, "")

	for n := 1; n <= max; n++ {
		head := words[:n]
		phonetic := codesOverlap(metaphoneCodes(head), g.codes)

		score := matchr.JaroWinkler(strings.Join(head, " "), phrase, false)
		if s := matchr.JaroWinkler(strings.Join(head, ""), concat, false); s > score {
			score = s
		}

		if phonetic && score >= phoneticJWThreshold {
			return true
		}
		if score >= jwThreshold {
			return true
		}
	}
	return false
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
