package domain

import "regexp"

var (
	indexRe    = regexp.MustCompile(`^A\d{6}$`)
	indexRefRe = regexp.MustCompile(`\bA\d{6}\b`)
)

// ValidIndex reports whether s is a canonical A-number ("A" + 6 digits).
func ValidIndex(s string) bool {
	return indexRe.MatchString(s)
}

// ReferencedIndices returns the distinct A-numbers mentioned in text, in order
// of first appearance, skipping self.
func ReferencedIndices(text, self string) []string {
	seen := map[string]bool{self: true}
	var out []string
	for _, m := range indexRefRe.FindAllString(text, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
