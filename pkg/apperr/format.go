package apperr

import (
	"sort"
	"strings"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

// Format renders the error for terminal display: the message, any field
// details or gate reasons, and the registered hint.
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString(color(colorRed, color(colorBold, "ERROR: ")))
	b.WriteString(e.Message)
	b.WriteString("\n")

	if len(e.Details) > 0 {
		fields := make([]string, 0, len(e.Details))
		for f := range e.Details {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			b.WriteString("  ")
			b.WriteString(color(colorYellow, f))
			b.WriteString(": ")
			b.WriteString(strings.Join(e.Details[f], ", "))
			b.WriteString("\n")
		}
	}

	for _, r := range e.Reasons {
		b.WriteString("  - ")
		b.WriteString(r)
		b.WriteString("\n")
	}

	if t, ok := registry[e.Kind]; ok && t.Hint != "" {
		b.WriteString(color(colorGray, "  Hint: "+t.Hint))
		b.WriteString("\n")
	}
	return b.String()
}
