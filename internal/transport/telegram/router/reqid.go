package router

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// splitArgs returns the command word (without "/" and "@bot") and the rest
// of the text.
func splitArgs(text string) (word string, args []string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, ""
	}
	head, tail, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		tail = head[i:] + " " + tail
		head = head[:i]
	}
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	rest = strings.TrimSpace(tail)
	return strings.ToLower(word), strings.Fields(rest), rest
}
