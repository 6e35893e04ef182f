package substring

import "github.com/rivo/uniseg"

// ChunkIntoGraphemes splits s into one chunk per user-perceived character
// (grapheme cluster) rather than per Unicode codepoint. This is not present
// in the original substring.rs: it extends the same chunking contract so a
// substring constraint over combining-character text (e.g. a base letter
// plus combining accents, or an emoji with modifiers) never splits a
// cluster a human would treat as a single character.
func ChunkIntoGraphemes(s string) []string {
	var chunks []string
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		if cluster == "" {
			break
		}
		chunks = append(chunks, cluster)
	}
	return chunks
}
