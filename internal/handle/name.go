package handle

import "golang.org/x/text/unicode/norm"

// MaxNameLen is the maximum number of characters a watch item's
// display name may occupy before truncation.
const MaxNameLen = 31

// NormalizeName NFC-normalizes name (so combining-mark sequences
// collapse to their precomposed form) and truncates it to MaxNameLen
// runes. Normalizing before truncating avoids splitting a grapheme
// cluster at the truncation boundary when the input uses a decomposed
// form.
func NormalizeName(name string) string {
	normalized := norm.NFC.String(name)
	runes := []rune(normalized)
	if len(runes) <= MaxNameLen {
		return normalized
	}
	return string(runes[:MaxNameLen])
}
