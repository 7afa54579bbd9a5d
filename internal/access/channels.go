package access

import (
	"fmt"
	"regexp"
	"strings"
)

// ChannelError rejects a malformed channel argument. A command carrying one
// is refused as a whole.
type ChannelError struct {
	Input  string
	Reason string
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("invalid channel %q: %s", e.Input, e.Reason)
}

var (
	usernameRe  = regexp.MustCompile(`^@[A-Za-z0-9_]{3,32}$`)
	numericIDRe = regexp.MustCompile(`^-?\d+$`)
	linkPrefix  = []string{"https://t.me/", "http://t.me/", "t.me/"}
)

// NormalizeChannel turns "name", "@name", "name," or "https://t.me/name"
// into "@name". Numeric chat ids are kept as is. An input that is empty
// after trimming returns "" and no error.
func NormalizeChannel(in string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(in), ",")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if numericIDRe.MatchString(s) {
		return s, nil
	}
	for _, p := range linkPrefix {
		if strings.HasPrefix(strings.ToLower(s), p) {
			s = strings.TrimSuffix(s[len(p):], "/")
			break
		}
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	if !usernameRe.MatchString(s) {
		return "", &ChannelError{Input: in, Reason: "expected @username, t.me link or numeric chat id"}
	}
	return s, nil
}

// ParseChannels normalizes every argument. Comma separated lists inside a
// single argument are split. The first malformed entry aborts the parse.
func ParseChannels(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			ch, err := NormalizeChannel(part)
			if err != nil {
				return nil, err
			}
			if ch != "" {
				out = append(out, ch)
			}
		}
	}
	return out, nil
}
