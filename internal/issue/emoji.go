package issue

import (
	"strings"

	"golang.org/x/text/collate"
)

// emojiOrder ranks status-style emojis from most to least urgent. Values that
// start with (or contain) an earlier emoji sort before values with a later
// one, and any ranked value sorts before unranked text.
var emojiOrder = []rune{
	'⛔', '🔴', '❌', '🟠', '⚠', '🟡', '🟢', '✅', '🔵', '🟣', '🟤', '⚫', '⚪', '🚀', '🎉', '💤',
}

var emojiRanks = func() map[rune]int {
	m := make(map[rune]int, len(emojiOrder))
	for i, r := range emojiOrder {
		m[r] = i
	}
	return m
}()

func isEmoji(r rune) bool {
	return r >= 0x1F000 || (r >= 0x2190 && r <= 0x2BFF)
}

// firstEmoji returns the first emoji rune in s, if any.
func firstEmoji(s string) (rune, bool) {
	for _, r := range s {
		if isEmoji(r) {
			return r, true
		}
	}
	return 0, false
}

// emojiRank returns the rank of the first recognized emoji in s, or -1.
func emojiRank(s string) int {
	for _, r := range s {
		if rank, ok := emojiRanks[r]; ok {
			return rank
		}
	}
	return -1
}

// compareValues orders two resolved field values: recognized emojis first by
// their domain rank, then locale-aware lexical comparison as the tie-break.
func compareValues(col *collate.Collator, a, b string) int {
	ra, rb := emojiRank(a), emojiRank(b)
	switch {
	case ra >= 0 && rb >= 0 && ra != rb:
		if ra < rb { return -1 }
		return 1
	case ra >= 0 && rb < 0:
		return -1
	case ra < 0 && rb >= 0:
		return 1
	}
	return col.CompareString(strings.TrimSpace(a), strings.TrimSpace(b))
}
