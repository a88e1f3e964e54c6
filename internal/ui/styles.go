// Package ui renders the short styled lines the CLI prints.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colors; adaptive so they read on light and dark terminals.
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "203"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "25", Dark: "75"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "244", Dark: "245"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	keyStyle    = lipgloss.NewStyle().Foreground(ColorMuted).Width(14)
)

// DisableColor switches all rendering to plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorEnabled reports whether rendering currently emits color.
func ColorEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// Pass prints a success line.
func Pass(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", RenderPass("✓"), fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", RenderWarn("⚠"), fmt.Sprintf(format, args...))
}

// Fail prints a failure line.
func Fail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", RenderFail("✗"), fmt.Sprintf(format, args...))
}

// KV prints an indented key/value detail line.
func KV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "   %s %v\n", keyStyle.Render(key+":"), value)
}

// Heading prints a section title.
func Heading(w io.Writer, title string) {
	fmt.Fprintln(w, accentStyle.Bold(true).Render(title))
}

// List prints items as an indented bullet list, truncated after limit
// entries. A limit of zero prints everything.
func List(w io.Writer, items []string, limit int) {
	shown := items
	if limit > 0 && len(items) > limit {
		shown = items[:limit]
	}
	for _, item := range shown {
		fmt.Fprintf(w, "   %s %s\n", RenderMuted("•"), item)
	}
	if rest := len(items) - len(shown); rest > 0 {
		fmt.Fprintf(w, "   %s\n", RenderMuted(fmt.Sprintf("… and %d more", rest)))
	}
}

// Indent prefixes every line of s.
func Indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
