package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/supervisor"
)

// TableColumn is a column title and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable builds a non-focused Bubbles table with the netmon header style.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	s.Selected = s.Cell
	t.SetStyles(s)
	return t
}

// RenderTable renders rows as a static table for command output.
func RenderTable(columns []TableColumn, rows [][]string) string {
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// ConnectionLabel describes a device's tri-state connection flag.
func ConnectionLabel(d *device.Device) string {
	switch {
	case d.Connected == nil:
		return SymbolPending + " unknown"
	case *d.Connected:
		return SymbolSuccess + " verified"
	default:
		return SymbolFail + " failed"
	}
}

// RenderDeviceTable lists devices for `netmon device list`.
func RenderDeviceTable(devices []*device.Device) string {
	if len(devices) == 0 {
		return "No devices configured"
	}
	columns := []TableColumn{
		{"ID", 36}, {"ENDPOINT", 28}, {"STATUS", 10}, {"CONNECTION", 12}, {"INTERVAL", 9}, {"SUDO", 5},
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		sudo := "no"
		if d.Sudo {
			sudo = "yes"
		}
		rows = append(rows, []string{
			d.ID,
			fmt.Sprintf("%s@%s:%d", d.User, d.Host, d.Port),
			string(d.Status),
			ConnectionLabel(d),
			fmt.Sprintf("%ds", d.StatInterval),
			sudo,
		})
	}
	return RenderTable(columns, rows)
}

// RenderTaskTable lists supervisor tasks.
func RenderTaskTable(tasks []supervisor.Info) string {
	if len(tasks) == 0 {
		return "No tasks"
	}
	columns := []TableColumn{{"TASK", 52}, {"NAME", 16}, {"STATE", 9}, {"RESTARTS", 9}, {"LAST ERROR", 48}}
	rows := make([][]string, 0, len(tasks))
	for _, info := range tasks {
		rows = append(rows, []string{
			info.ID,
			info.Name,
			string(info.State),
			fmt.Sprintf("%d", info.Restarts),
			truncate(info.LastError, 48),
		})
	}
	return RenderTable(columns, rows)
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}
