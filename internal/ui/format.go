package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/oxyio/netmon/internal/stats"
)

// FormatValue renders a sample value in the unit its category reports:
// CPU in percent, memory in kB, disk in 1000-byte blocks, network byte
// counters as signed byte deltas, everything else as a signed count.
func FormatValue(s stats.Sample) string {
	v := s.Value
	switch {
	case s.Category == stats.CPU:
		return fmt.Sprintf("%.1f%%", v)
	case s.Category == stats.Memory:
		return humanize.IBytes(uint64(math.Max(v, 0)) * 1024)
	case s.Category == stats.Disk:
		return humanize.Bytes(uint64(math.Max(v, 0)) * 1000)
	case s.Category == stats.NetworkIO && strings.HasSuffix(s.Detail, "_bytes"):
		return signed(v, humanize.Bytes(uint64(math.Abs(v))))
	case s.Category.Cumulative():
		return signed(v, humanize.Comma(int64(math.Abs(v))))
	default:
		return humanize.Commaf(v)
	}
}

func signed(v float64, magnitude string) string {
	switch {
	case v > 0:
		return "+" + magnitude
	case v < 0:
		return "-" + magnitude
	default:
		return magnitude
	}
}

// colorFor picks the sparkline color of a category.
func colorFor(category stats.Category) func(float64) lipgloss.Color {
	switch {
	case category == stats.CPU:
		return ThresholdColor
	case category.Cumulative():
		return TrendColor
	default:
		return nil
	}
}
