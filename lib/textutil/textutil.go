package textutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName finds the candidate equal to name after normalization.
func MatchName(name string, candidates []string) (string, bool) {
	target := NormalizeName(name)
	for _, c := range candidates {
		if NormalizeName(c) == target {
			return c, true
		}
	}
	return "", false
}

// Suggest returns the candidates closest to name by Jaro-Winkler similarity, best first,
// keeping only those at or above threshold.
func Suggest(name string, candidates []string, threshold float64) []string {
	type scored struct {
		name  string
		score float64
	}
	target := NormalizeName(name)
	var matches []scored
	for _, c := range candidates {
		score := matchr.JaroWinkler(target, NormalizeName(c), false)
		if score >= threshold {
			matches = append(matches, scored{name: c, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
