package consolidate

// pairSeparator never occurs in a participant identifier.
const pairSeparator = "\x1f"

// PairKey returns the grouping key for an unordered participant pair.
//
// PairKey(a, b) == PairKey(b, a). A self pair (a == b) yields a valid, stable
// key. Keys are only used in memory and are never persisted.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + pairSeparator + b
}
