package substring

import "unicode"

func isAlnumOrUnderscore(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isUnicodeSpace(r rune) bool {
	return unicode.IsSpace(r)
}
