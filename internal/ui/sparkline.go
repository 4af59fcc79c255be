package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Eight levels, lowest first.
var sparklineBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the last width values of data scaled between their
// own min and max. A flat series sits on the middle level. The color comes
// from colorFor applied to the newest value; nil means no color.
func RenderSparkline(data []float64, width int, colorFor func(float64) lipgloss.Color) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	top := len(sparklineBlocks) - 1

	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for _, v := range data {
		level := top / 2
		if span > 0 {
			level = int((v - lo) / span * float64(top))
			level = max(0, min(top, level))
		}
		sb.WriteRune(sparklineBlocks[level])
	}

	if colorFor == nil {
		return sb.String()
	}
	return lipgloss.NewStyle().Foreground(colorFor(data[len(data)-1])).Render(sb.String())
}

// ThresholdColor colors a utilization percentage: green below 60, yellow
// below 80, red above.
func ThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}

// TrendColor colors a signed delta: rising cyan, falling yellow, flat gray.
func TrendColor(delta float64) lipgloss.Color {
	switch {
	case delta > 0:
		return ColorInfo
	case delta < 0:
		return ColorWarning
	default:
		return ColorMuted
	}
}
