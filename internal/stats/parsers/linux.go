// Package parsers turns raw Linux command output into stats readings.
// Every parser is a pure function over the command's stdout lines.
package parsers

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/stats"
)

// Commands fetching each category. The CPU command samples twice, one
// second apart, so a single run yields a usage percentage.
var Commands = map[stats.Category]string{
	stats.CPU:       "cat /proc/stat; sleep 1; cat /proc/stat",
	stats.Memory:    "cat /proc/meminfo",
	stats.Disk:      "df -PB 1000",
	stats.DiskIO:    "cat /proc/diskstats",
	stats.NetworkIO: "cat /proc/net/dev",
}

// malformed reports output a parser can't read. cause may be nil.
func malformed(cause error, format string, args ...any) error {
	return errors.WrapWithCode(cause, errors.ErrParse, fmt.Sprintf(format, args...), "")
}

// Parser converts command output to a reading.
type Parser func(lines []string) (stats.Reading, error)

// For returns the parser for a category.
func For(category stats.Category) (Parser, bool) {
	switch category {
	case stats.CPU:
		return ParseCPU, true
	case stats.Memory:
		return ParseMemory, true
	case stats.Disk:
		return ParseDisk, true
	case stats.DiskIO:
		return ParseDiskIO, true
	case stats.NetworkIO:
		return ParseNetworkIO, true
	}
	return nil, false
}

var cpuColumns = []string{"user", "nice", "system", "idle", "iowait", "irq", "soft_irq"}

// ParseCPU parses two concatenated /proc/stat snapshots. For each cpu line
// the first occurrence is the baseline and the second gives the usage of
// every field as a percentage of the total change, rounded to 3 decimals.
// idle only contributes to the total.
func ParseCPU(lines []string) (stats.Reading, error) {
	first := make(map[string][]int64)
	var order []string
	reading := stats.Reading{}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		key := fields[0]
		if len(fields) < len(cpuColumns)+1 {
			return nil, malformed(nil, "invalid /proc/stat line for %s: %q", key, line)
		}

		values := make([]int64, len(cpuColumns))
		for i := range cpuColumns {
			v, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return nil, malformed(err, "failed to parse %s field %s", key, cpuColumns[i])
			}
			values[i] = v
		}

		base, seen := first[key]
		if !seen {
			first[key] = values
			order = append(order, key)
			continue
		}

		var total int64
		diffs := make([]int64, len(cpuColumns))
		for i := range values {
			diffs[i] = values[i] - base[i]
			total += diffs[i]
		}

		details := make(map[string]float64, len(cpuColumns)-1)
		for i, column := range cpuColumns {
			if column == "idle" {
				continue
			}
			if total == 0 {
				details[column] = 0
				continue
			}
			details[column] = round3(float64(diffs[i]) / float64(total) * 100)
		}
		reading[key] = details
	}

	for _, key := range order {
		if _, ok := reading[key]; !ok {
			return nil, malformed(nil, "only one /proc/stat snapshot for %s", key)
		}
	}

	return reading, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

var memoryFields = map[string]struct{ group, detail string }{
	"MemTotal:":   {"memory", "total"},
	"MemFree:":    {"memory", "free"},
	"Buffers:":    {"memory", "buffers"},
	"Cached:":     {"memory", "cached"},
	"SwapTotal:":  {"swap", "total"},
	"SwapFree:":   {"swap", "free"},
	"SwapCached:": {"swap", "cached"},
}

// ParseMemory parses /proc/meminfo into the memory and swap groups.
// Values stay in the kB units the kernel reports. Unknown lines are ignored.
func ParseMemory(lines []string) (stats.Reading, error) {
	reading := stats.Reading{
		"memory": {},
		"swap":   {},
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		target, ok := memoryFields[fields[0]]
		if !ok {
			continue
		}

		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, malformed(err, "failed to parse %s", fields[0])
		}
		reading.Set(target.group, target.detail, float64(v))
	}

	return reading, nil
}

var diskColumns = []string{"blocks", "used", "available"}

// ParseDisk parses `df -P` output keyed by mount point. The header row and
// rows for the "none" pseudo filesystem are skipped.
func ParseDisk(lines []string) (stats.Reading, error) {
	reading := stats.Reading{}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Filesystem" || fields[0] == "none" {
			continue
		}
		if len(fields) < 6 {
			return nil, malformed(nil, "invalid df line: %q", line)
		}

		mount := strings.Join(fields[5:], " ")
		for i, column := range diskColumns {
			v, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return nil, malformed(err, "failed to parse %s for %s", column, mount)
			}
			reading.Set(mount, column, float64(v))
		}
	}

	return reading, nil
}

var diskIOColumns = []string{
	"reads", "read_merges", "read_sectors", "read_time",
	"writes", "write_merges", "write_sectors", "write_time",
	"current_ios", "io_time",
}

// ParseDiskIO parses /proc/diskstats keyed by device name. loop and ram
// devices are skipped.
func ParseDiskIO(lines []string) (stats.Reading, error) {
	reading := stats.Reading{}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) >= 3 && (strings.HasPrefix(fields[2], "loop") || strings.HasPrefix(fields[2], "ram")) {
			continue
		}
		if len(fields) < 3+len(diskIOColumns) {
			return nil, malformed(nil, "invalid /proc/diskstats line: %q", line)
		}

		name := fields[2]

		for i, column := range diskIOColumns {
			v, err := strconv.ParseInt(fields[i+3], 10, 64)
			if err != nil {
				return nil, malformed(err, "failed to parse %s for %s", column, name)
			}
			reading.Set(name, column, float64(v))
		}
	}

	return reading, nil
}

var (
	interfaceLine  = regexp.MustCompile(`^\s*([^\s:]+):`)
	networkColumns = []string{"bytes", "packets", "errors", "drop"}
)

// ParseNetworkIO parses /proc/net/dev keyed by interface. The counters
// follow the first colon, which older kernels print with no space before
// wide receive byte counts. Receive counters are fields 0-3, transmit
// counters fields 8-11.
func ParseNetworkIO(lines []string) (stats.Reading, error) {
	reading := stats.Reading{}

	for _, line := range lines {
		match := interfaceLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := match[1]

		fields := strings.Fields(line[strings.IndexByte(line, ':')+1:])
		if len(fields) < 12 {
			return nil, malformed(nil, "invalid /proc/net/dev line for %s: %q", name, line)
		}

		for i, column := range networkColumns {
			rx, err := strconv.ParseInt(fields[i], 10, 64)
			if err != nil {
				return nil, malformed(err, "failed to parse receive_%s for %s", column, name)
			}
			tx, err := strconv.ParseInt(fields[8+i], 10, 64)
			if err != nil {
				return nil, malformed(err, "failed to parse transmit_%s for %s", column, name)
			}
			reading.Set(name, "receive_"+column, float64(rx))
			reading.Set(name, "transmit_"+column, float64(tx))
		}
	}

	return reading, nil
}
