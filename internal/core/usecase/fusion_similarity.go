package usecase

import (
	"strings"
	"unicode"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// A field present on exactly one side is excluded; one missing from both keeps
// its weight in the denominator. ok is false for malformed or all-one-sided payloads.
func fieldSimilarity(a, b map[string]any, fields []domain.FieldWeight) (float64, bool) {
	var num, den float64
	for _, fw := range fields {
		if fw.Weight <= 0 {
			continue
		}
		av, aPresent, aOK := fieldString(a, fw.Field)
		bv, bPresent, bOK := fieldString(b, fw.Field)
		if !aOK || !bOK {
			return 0, false
		}
		switch {
		case aPresent && bPresent:
			num += fieldValueSimilarity(av, bv, fw.ExactMatch) * fw.Weight
			den += fw.Weight
		case !aPresent && !bPresent:
			den += fw.Weight
		}
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func fieldValueSimilarity(a, b string, exact bool) float64 {
	if exact {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			return 1.0
		}
		return 0.0
	}
	return 0.6*jaccardSimilarity(toTokenSet(a), toTokenSet(b)) + 0.4*editSimilarity(a, b)
}

func fieldString(payload map[string]any, field string) (value string, present, ok bool) {
	if payload == nil {
		return "", false, true
	}
	raw, exists := payload[field]
	if !exists || raw == nil {
		return "", false, true
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, true
	}
	return s, true, true
}

// contentFingerprint is the coarse exact-duplicate key; ok is false when no usable field remains.
func contentFingerprint(payload map[string]any, fields []domain.FieldWeight) (string, bool) {
	parts := make([]string, 0, len(fields))
	usable := false
	for _, fw := range fields {
		v, present, ok := fieldString(payload, fw.Field)
		if !ok {
			return "", false
		}
		if present {
			usable = true
			parts = append(parts, strings.Join(splitAlphaNumLower(v), " "))
		} else {
			parts = append(parts, "")
		}
	}
	if !usable {
		return "", false
	}
	return strings.Join(parts, "|"), true
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// editSimilarity is 1 - levenshtein/maxLen over lowercased runes.
func editSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func tokenOverlap(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
