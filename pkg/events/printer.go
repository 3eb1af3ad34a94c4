package events

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/kode4food/cascade/pkg/api"
)

// Printer is a Listener that writes one human-readable line per event
type Printer struct {
	w      io.Writer
	styles map[api.EventType]lipgloss.Style
	plain  lipgloss.Style
	mu     sync.Mutex
}

const (
	printerTimeFormat = "15:04:05.000"
	printerTypeWidth  = 15
)

// NewPrinter creates a Printer writing to w. Colors are used only when w is
// a terminal
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	base := r.NewStyle().Width(printerTypeWidth)
	color := func(c string) lipgloss.Style {
		return base.Foreground(lipgloss.Color(c))
	}

	return &Printer{
		w:     w,
		plain: base,
		styles: map[api.EventType]lipgloss.Style{
			api.EventTypeFlowStarted:   color("12").Bold(true),
			api.EventTypeStepStarted:   color("8"),
			api.EventTypeStepCompleted: color("10"),
			api.EventTypeStepFailed:    color("9"),
			api.EventTypeFlowCompleted: color("10").Bold(true),
			api.EventTypeFlowFailed:    color("9").Bold(true),
			api.EventTypeFlowCancelled: color("11").Bold(true),
		},
	}
}

// HandleEvent writes the event
func (p *Printer) HandleEvent(ev api.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, p.format(ev))
	return err
}

func (p *Printer) format(ev api.Event) string {
	style, ok := p.styles[ev.Type]
	if !ok {
		style = p.plain
	}

	parts := []string{
		ev.Timestamp.Format(printerTimeFormat),
		style.Render(string(ev.Type)),
	}
	if ev.Step != "" {
		parts = append(parts, string(ev.Step))
	} else {
		parts = append(parts, ev.Flow)
	}
	if ev.Label != "" {
		parts = append(parts, "-> "+string(ev.Label))
	}
	parts = append(parts, fmt.Sprintf("rev=%d", ev.Revision))
	if ev.Error != "" {
		parts = append(parts, "error="+ev.Error)
	}
	return strings.Join(parts, " ")
}

