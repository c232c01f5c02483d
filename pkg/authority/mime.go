package authority

import "strings"

// MatchesAccept reports whether contentType is permitted by an accept list.
//
// Matching supports three forms:
//   - exact: "image/png" accepts only "image/png"
//   - full wildcard: "*/*" accepts everything
//   - type wildcard: "image/*" accepts any "image/..." subtype
//
// Comparison is case-insensitive per MIME convention. An empty accept list
// permits any type.
func MatchesAccept(accept []string, contentType string) bool {
	if len(accept) == 0 {
		return true
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))

	for _, pattern := range accept {
		pattern = strings.ToLower(strings.TrimSpace(pattern))

		if pattern == "*/*" {
			return true
		}
		if mediaType, found := strings.CutSuffix(pattern, "/*"); found {
			if prefix, _, ok := strings.Cut(contentType, "/"); ok && prefix == mediaType {
				return true
			}
			continue
		}
		if pattern == contentType {
			return true
		}
	}

	return false
}
