package sample

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// TrimPrompt entfernt den Prompt vom Anfang des dekodierten Textes. Stimmt
// der Anfang nicht exakt ueberein (z.B. nach Normalisierung), wird an der
// Stelle getrennt, deren Praefix den kleinsten Levenshtein-Abstand zum Prompt hat.
func TrimPrompt(prompt, full string) string {
	if rest, ok := strings.CutPrefix(full, prompt); ok {
		return rest
	}
	if prompt == "" {
		return full
	}

	runes := []rune(full)
	limit := min(len(runes), 2*len([]rune(prompt))+8)

	best, bestDist := 0, levenshtein.ComputeDistance(prompt, "")
	for i := 1; i <= limit; i++ {
		if d := levenshtein.ComputeDistance(prompt, string(runes[:i])); d < bestDist {
			best, bestDist = i, d
		}
	}
	return string(runes[best:])
}
