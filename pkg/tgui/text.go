package tgui

import "unicode/utf8"

// TruncRunes limits s to n runes. A cut string ends in "…", which counts
// toward n.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	keep := n - 1
	for i := range s {
		if keep == 0 {
			return s[:i] + "…"
		}
		keep--
	}
	return s
}
