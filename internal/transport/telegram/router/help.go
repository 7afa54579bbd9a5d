package router

import (
	"html"
	"sort"
	"strings"
)

// HelpText renders the command list in HTML parse mode. Owner-only
// commands are listed only for owners.
func (m *CommandManager) HelpText(forOwner bool) string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	sort.SliceStable(cmds, func(i, j int) bool {
		li, lj := cmds[i].Access == AccessOwnerOnly, cmds[j].Access == AccessOwnerOnly
		if li != lj {
			return !li
		}
		return cmds[i].Route < cmds[j].Route
	})

	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessOwnerOnly && !forOwner) {
			continue
		}
		lines = append(lines, helpLine(c))
	}
	return strings.Join(lines, "\n")
}

func helpLine(c Command) string {
	usage := strings.TrimSpace(c.Usage)
	if usage == "" {
		usage = "/" + c.Route
	}
	prefix := "• "
	if c.Access == AccessOwnerOnly {
		prefix = "• 🔒 "
	}
	line := prefix + "<code>" + html.EscapeString(usage) + "</code>"
	if d := strings.TrimSpace(c.Description); d != "" {
		line += " — " + html.EscapeString(d)
	}
	return line
}
