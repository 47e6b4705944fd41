package logging

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleReply     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	styleEscalate  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	styleSkip      = lipgloss.NewStyle().Faint(true)
	styleProgress  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleRewrite   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	styleValidated = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleError     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	stylePlain     = lipgloss.NewStyle()
)

// ConsoleEcho prints one styled line per decision entry.
type ConsoleEcho struct {
	w io.Writer
}

// NewConsoleEcho creates an echo writing to w.
func NewConsoleEcho(w io.Writer) *ConsoleEcho {
	return &ConsoleEcho{w: w}
}

// Print writes the rendered entry followed by a newline.
func (e *ConsoleEcho) Print(entry DecisionEntry) {
	fmt.Fprintln(e.w, Render(entry))
}

// Render formats an entry as "DECISION • subject  — reason".
// Progress decisions omit the reason.
func Render(entry DecisionEntry) string {
	label := fmt.Sprintf("%-9s", entry.Decision)
	switch entry.Decision {
	case DecisionReply:
		return fmt.Sprintf("%s • %s  — %s", styleReply.Render(label), entry.Subject, entry.Reason)
	case DecisionEscalate:
		return fmt.Sprintf("%s • %s  — %s", styleEscalate.Render(label), entry.Subject, entry.Reason)
	case DecisionSkip:
		return fmt.Sprintf("%s • %s  — %s", styleSkip.Render(label), entry.Subject, entry.Reason)
	case DecisionRetrieve, DecisionDraft:
		return fmt.Sprintf("%s • %s", styleProgress.Render(label), entry.Subject)
	case DecisionRewrite:
		return fmt.Sprintf("%s • %s  — %s", styleRewrite.Render(label), entry.Subject, entry.Reason)
	case DecisionValidated:
		return fmt.Sprintf("%s • %s  — %s", styleValidated.Render(label), entry.Subject, entry.Reason)
	case DecisionError:
		return fmt.Sprintf("%s • %s  — %s", styleError.Render(label), entry.Subject, entry.Detail)
	default:
		return fmt.Sprintf("%s • %s  — %s", stylePlain.Render(label), entry.Subject, entry.Reason)
	}
}
