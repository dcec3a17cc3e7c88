// Package slug produces unique, human-readable slugs for addressable records.
package slug

import (
	"strconv"
	"strings"
	"unicode"
)

// Make lowercases the title and collapses everything that is not a letter or
// digit into single hyphens.
func Make(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}

// Generate returns a slug for title that does not collide with any of the
// sibling slugs, suffixing -2, -3, ... until unique.
func Generate(title string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}

	base := Make(title)
	candidate := base
	for n := 2; ; n++ {
		if _, exists := used[candidate]; !exists {
			return candidate
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}
