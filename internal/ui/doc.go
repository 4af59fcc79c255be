// Package ui renders netmon's terminal output: the live watch view of one
// device, the spinner shown while bootstrapping, and the tables printed by
// the device and task listings.
//
// Colors are plain ANSI codes so output degrades cleanly on limited
// terminals:
//
//	ColorSuccess (green)  - verified devices, running tasks
//	ColorError   (red)    - failures
//	ColorWarning (yellow) - baselines, suspended devices, falling counters
//	ColorInfo    (cyan)   - rising counters, headers
//	ColorMuted   (gray)   - secondary text
//
// The watch view is a Bubble Tea model fed by monitor ticks:
//
//	ticks := make(chan monitor.Tick, 8)
//	loop := monitor.New(d, monitor.Options{Observer: func(t monitor.Tick) { ticks <- t }})
//	p := tea.NewProgram(ui.NewWatch(d.ID, ticks), tea.WithAltScreen())
package ui
