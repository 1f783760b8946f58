package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline renders a mini line chart using braille characters, auto-scaled
// to the largest value.
func Sparkline(values []float64, width int, s Styles) string {
	if len(values) == 0 || width < 1 {
		return ""
	}

	// Dots bottom to top: ⣀ ⣤ ⣶ ⣿
	blocks := []rune{'⣀', '⣤', '⣶', '⣿'}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	var result strings.Builder
	for _, v := range sampleValues(values, width) {
		level := int(v / maxVal * float64(len(blocks)-1))
		if level < 0 {
			level = 0
		}
		if level >= len(blocks) {
			level = len(blocks) - 1
		}
		result.WriteRune(blocks[level])
	}

	return s.Info.Render(result.String())
}

// sampleValues keeps the most recent values when there are more than width,
// and left-pads with zeros when there are fewer.
func sampleValues(values []float64, width int) []float64 {
	sampled := make([]float64, width)
	if len(values) >= width {
		copy(sampled, values[len(values)-width:])
		return sampled
	}
	copy(sampled[width-len(values):], values)
	return sampled
}

// LossGauge renders the loss percentage as a colored bar.
func LossGauge(percent float64, width int, s Styles) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	barWidth := width - 8
	if barWidth < 5 {
		barWidth = 5
	}
	filled := int(percent / 100 * float64(barWidth))

	var color lipgloss.Color
	switch {
	case percent >= 10:
		color = DefaultTheme.Error
	case percent > 0:
		color = DefaultTheme.Warning
	default:
		color = DefaultTheme.Success
	}

	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("━", filled)) +
		s.Muted.Render(strings.Repeat("━", barWidth-filled))
	return fmt.Sprintf("%s %s", bar, s.Dim.Render(fmt.Sprintf("%5.1f%%", percent)))
}

// formatMicros renders an RTT in the most readable unit.
func formatMicros(us float64) string {
	switch {
	case us >= 1_000_000:
		return fmt.Sprintf("%.2fs", us/1_000_000)
	case us >= 1_000:
		return fmt.Sprintf("%.2fms", us/1_000)
	default:
		return fmt.Sprintf("%.1fμs", us)
	}
}
