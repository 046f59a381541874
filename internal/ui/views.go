package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bandwatch/internal/history"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00A4A4"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	hotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A40000"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00A4A4")).
			Padding(0, 1)
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// renderView renders the whole screen
func renderView(m Model) string {
	width := max(m.Width-4, 20)

	var b strings.Builder
	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Width(width).Render(
		dimStyle.Render("Waveform") + "\n" + strings.Join(waveform(pointValues(m.Samples), width-2, 7), "\n"),
	))
	b.WriteString("\n")
	b.WriteString(boxStyle.Width(width).Render(renderEnvelope(m, width-2)))
	b.WriteString("\n")
	b.WriteString(renderEvents(m))
	b.WriteString("\n")
	b.WriteString(renderStatus(m))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit"))
	return b.String()
}

// renderHeader renders the title line and the run settings
func renderHeader(m Model) string {
	title := titleStyle.Render("bandwatch - band energy monitor")
	sub := fmt.Sprintf("band %s | threshold %.4g | window %v | source %s",
		m.Settings.Band, m.Settings.Threshold, m.Settings.Display, m.Settings.Source)
	if m.Settings.RunID != "" {
		sub += " | run " + m.Settings.RunID
	}
	return title + "\n" + dimStyle.Render(sub)
}

// renderEnvelope renders the RMS sparkline with the threshold as reference
func renderEnvelope(m Model, width int) string {
	values := pointValues(m.Envelope)
	top := m.Settings.Threshold * 2
	for _, v := range values {
		top = math.Max(top, v)
	}

	current := 0.0
	if len(values) > 0 {
		current = values[len(values)-1]
	}
	level := fmt.Sprintf("RMS %.4f", current)
	if current > m.Settings.Threshold {
		level = hotStyle.Render(level)
	}

	marker := thresholdMarker(m.Settings.Threshold, top, len(sparkLevels))
	return fmt.Sprintf("%s  %s  %s\n%s",
		dimStyle.Render("Envelope"), level,
		dimStyle.Render(fmt.Sprintf("threshold at level %d/%d", marker, len(sparkLevels))),
		sparkline(downsample(values, width), top))
}

// renderEvents lists the most recent events
func renderEvents(m Model) string {
	if len(m.Events) == 0 {
		return dimStyle.Render(" no events yet")
	}
	var b strings.Builder
	for i := len(m.Events) - 1; i >= 0; i-- {
		b.WriteString(" ")
		b.WriteString(hotStyle.Render("●"))
		b.WriteString(" ")
		b.WriteString(m.Events[i].String())
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// renderStatus renders the engine counters and the latest notice
func renderStatus(m Model) string {
	s := m.Stats
	line := fmt.Sprintf("blocks %d | events %d (%d undelivered) | stream faults %d | dropped blocks %d | deadline misses %d",
		s.Blocks, s.Events, s.EventsDropped, s.StreamFaults, s.ProcessingFaults, s.DeadlineMisses)
	line = dimStyle.Render(line)
	if m.LastNotice != nil {
		line += "\n" + warnStyle.Render(fmt.Sprintf("%d notices, last: %v", m.Notices, m.LastNotice.Err()))
	}
	if m.Done {
		state := "source finished"
		if m.Err != nil {
			state = "source failed: " + m.Err.Error()
		}
		line += "\n" + hotStyle.Render(state)
	}
	return line
}

func pointValues(points []history.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// downsample reduces values to at most width buckets, keeping the value of
// largest magnitude in each bucket so short peaks stay visible.
func downsample(values []float64, width int) []float64 {
	if width <= 0 {
		return nil
	}
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		peak := values[lo]
		for _, v := range values[lo+1 : hi] {
			if math.Abs(v) > math.Abs(peak) {
				peak = v
			}
		}
		out[i] = peak
	}
	return out
}

// sparkline maps each value in [0, top] to one of eight block heights.
func sparkline(values []float64, top float64) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteRune(sparkLevels[level(v, top, len(sparkLevels))])
	}
	return b.String()
}

// thresholdMarker returns the 1-based sparkline level the threshold maps to.
func thresholdMarker(threshold, top float64, levels int) int {
	return level(threshold, top, levels) + 1
}

func level(v, top float64, levels int) int {
	if !(top > 0) || !(v > 0) {
		return 0
	}
	i := int(v / top * float64(levels))
	return min(max(i, 0), levels-1)
}

// waveform draws the peak amplitude of each column as a bar mirrored around
// the centre row. Amplitudes are clipped to [-1, 1].
func waveform(values []float64, width, height int) []string {
	if height < 1 || width < 1 {
		return nil
	}
	cols := downsample(values, width)
	half := height / 2
	reachMax := min(half, height-1-half)

	rows := make([][]rune, height)
	for r := range rows {
		rows[r] = []rune(strings.Repeat(" ", width))
		if r == half {
			rows[r] = []rune(strings.Repeat("─", width))
		}
	}
	for c, v := range cols {
		a := min(math.Abs(v), 1)
		reach := int(math.Round(a * float64(reachMax)))
		if reach == 0 {
			continue
		}
		for r := half - reach; r <= half+reach; r++ {
			rows[r][c] = '█'
		}
	}

	out := make([]string, height)
	for r := range rows {
		out[r] = string(rows[r])
	}
	return out
}
