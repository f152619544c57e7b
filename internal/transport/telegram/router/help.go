package router

import (
	"strings"

	"remindbot/pkg/tgui"
)

// helpText renders help in HTML parse mode: the command list, or one command's
// details when args names it.
func (m *Manager) helpText(args []string) tgui.H {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		if c, ok := m.commands[name]; ok {
			return commandHelp(c)
		}
		return tgui.JoinH("\n", "❓ "+tgui.B("Unknown command"), "Type "+tgui.Code("/help")+" to list commands.")
	}

	lines := []tgui.H{"📚 " + tgui.B("Commands"), "Type " + tgui.Code("/help <cmd>") + " for details.", ""}
	for _, c := range m.ordered {
		line := "• " + tgui.Code("/"+c.Name)
		if c.Access == AccessOwnerOnly {
			line = "• 🔒 " + tgui.Code("/"+c.Name)
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " " + tgui.Esc("- "+d)
		}
		lines = append(lines, line)
	}
	return tgui.JoinH("\n", lines...)
}

func commandHelp(c *Command) tgui.H {
	lines := []tgui.H{"📚 " + tgui.B("Help") + " " + tgui.Code("/"+c.Name)}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 "+tgui.I("owner only"))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, tgui.B("Usage"))
		for _, l := range strings.Split(u, "\n") {
			lines = append(lines, tgui.Code(l))
		}
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, tgui.B("Aliases")+" "+tgui.Esc("/"+strings.Join(c.Aliases, ", /")))
	}
	return tgui.JoinH("\n", lines...)
}
