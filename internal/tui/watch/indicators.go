package watch

import (
	"fmt"
	"strings"
	"time"
)

// Pulse lights up when events arrive and fades over the next few seconds.
type Pulse struct {
	dots      int
	lastEvent time.Time
}

func (p *Pulse) OnEvent(at time.Time) {
	p.dots = 5
	p.lastEvent = at
}

// Decay fades the dots based on time since the last event.
func (p *Pulse) Decay(now time.Time) {
	if p.dots == 0 {
		return
	}
	elapsed := now.Sub(p.lastEvent)
	switch {
	case elapsed > 5*time.Second:
		p.dots = 0
	case elapsed > 4*time.Second:
		p.dots = 1
	case elapsed > 3*time.Second:
		p.dots = 2
	case elapsed > 2*time.Second:
		p.dots = 3
	case elapsed > time.Second:
		p.dots = 4
	}
}

func (p Pulse) Dots() int { return p.dots }

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < p.dots {
			b.WriteString(theme.DotActive.Render("●"))
		} else {
			b.WriteString(theme.DotInactive.Render("○"))
		}
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
