// Package summary renders dispatch and batch summaries for the terminal.
package summary

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Formatter formats a summary for terminal display.
type Formatter struct {
	JSON  bool
	Color bool
}

// NewFormatter creates a Formatter with the given options.
func NewFormatter(jsonOutput, color bool) *Formatter {
	return &Formatter{JSON: jsonOutput, Color: color}
}

// Format renders a summary as a human-readable string, one line per unit
// followed by a totals line.
func (f *Formatter) Format(s *aggregate.Summary) string {
	var b strings.Builder

	if s.Err != nil {
		b.WriteString(f.colorize(" dispatch rejected: "+s.Err.Error(), colorRed))
		b.WriteString("\n")
	}

	for _, u := range s.Units {
		f.writeUnit(&b, u)
	}

	b.WriteString(f.summaryLine(s))
	b.WriteString("\n")
	return b.String()
}

// FormatJSON serializes a summary as indented JSON.
func (f *Formatter) FormatJSON(s *aggregate.Summary) ([]byte, error) {
	type jsonUnit struct {
		ID       string `json:"id"`
		Target   string `json:"target,omitempty"`
		Action   string `json:"action"`
		Status   string `json:"status"`
		Detail   string `json:"detail,omitempty"`
		Duration string `json:"duration,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	type jsonSummary struct {
		Total     int        `json:"total"`
		Succeeded int        `json:"succeeded"`
		Failed    int        `json:"failed"`
		Skipped   int        `json:"skipped"`
		Error     string     `json:"error,omitempty"`
		Units     []jsonUnit `json:"units"`
	}

	out := jsonSummary{
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Units:     make([]jsonUnit, len(s.Units)),
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	for i, u := range s.Units {
		ju := jsonUnit{
			ID:     u.ID,
			Target: u.Target,
			Action: u.ActionID,
			Status: u.Status.String(),
			Detail: u.Detail,
		}
		if d := u.Duration(); d > 0 {
			ju.Duration = d.String()
		}
		if u.Err != nil {
			ju.Error = u.Err.Error()
		}
		out.Units[i] = ju
	}

	return json.MarshalIndent(out, "", "  ")
}

func (f *Formatter) writeUnit(b *strings.Builder, u aggregate.Unit) {
	var status string
	switch u.Status {
	case aggregate.Succeeded:
		status = f.colorize("ok  ", colorGreen)
	case aggregate.Failed:
		status = f.colorize("FAIL", colorRed)
	case aggregate.Skipped:
		status = f.colorize("skip", colorYellow)
	default:
		status = u.Status.String()
	}

	b.WriteString(" ")
	b.WriteString(status)
	b.WriteString("  ")
	b.WriteString(f.colorize(u.ID, colorCyan))

	if d := u.Duration(); d > 0 {
		b.WriteString(fmt.Sprintf("  (%s)", d.Round(time.Millisecond)))
	}
	b.WriteString("\n")

	detail := strings.TrimRight(u.Detail, "\n")
	if detail != "" {
		for _, line := range strings.Split(detail, "\n") {
			b.WriteString("      ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
}

func (f *Formatter) summaryLine(s *aggregate.Summary) string {
	parts := []string{
		fmt.Sprintf("%d succeeded", s.Succeeded),
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
	}
	return strings.Join(parts, ", ")
}

func (f *Formatter) colorize(text, color string) string {
	if !f.Color {
		return text
	}
	return color + text + colorReset
}
