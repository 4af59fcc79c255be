package stats

// DeltaEngine remembers the previous reading of each cumulative category
// and turns successive readings into per-interval differences.
//
// One engine belongs to one device's monitor loop and is not safe for
// concurrent use. Nothing is persisted: a new engine starts from a baseline.
type DeltaEngine struct {
	previous map[Category]Reading
}

// NewDeltaEngine returns an engine with no baselines.
func NewDeltaEngine() *DeltaEngine {
	return &DeltaEngine{previous: make(map[Category]Reading)}
}

// Apply records current as the category's latest reading and returns the
// difference from the previous one.
//
// The first reading of a category is a baseline and yields nothing. Keys
// missing from the previous reading are skipped for this call, as are
// details the previous reading lacked. Differences are signed: a counter
// reset shows up as a negative value.
func (e *DeltaEngine) Apply(category Category, current Reading) []KeyedValue {
	prev, seen := e.previous[category]
	e.previous[category] = current.Clone()
	if !seen {
		return nil
	}

	var out []KeyedValue
	for key, details := range current {
		prevDetails, ok := prev[key]
		if !ok {
			continue
		}
		for detail, v := range details {
			pv, ok := prevDetails[detail]
			if !ok {
				continue
			}
			out = append(out, KeyedValue{Key: key, Detail: detail, Value: v - pv})
		}
	}
	sortValues(out)
	return out
}

// HasBaseline reports whether a reading is stored for the category.
func (e *DeltaEngine) HasBaseline(category Category) bool {
	_, ok := e.previous[category]
	return ok
}

// Reset drops every stored reading.
func (e *DeltaEngine) Reset() {
	e.previous = make(map[Category]Reading)
}
