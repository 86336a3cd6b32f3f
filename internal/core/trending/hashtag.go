package trending

import (
	"fmt"
	"strings"
)

// NormalizeHashtag canonicalizes raw hashtag text into the identity used for
// all counting and recommendation: leading '#' characters stripped, case
// folded, surrounding whitespace removed.
// Example: NormalizeHashtag("#GoLang ") → "golang"
func NormalizeHashtag(raw string) (string, error) {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimLeft(tag, "#")
	tag = strings.ToLower(tag)
	if tag == "" {
		return "", fmt.Errorf("hashtag must not be empty")
	}
	if strings.ContainsAny(tag, " \t\n") {
		return "", fmt.Errorf("hashtag %q must not contain whitespace", raw)
	}
	return tag, nil
}
