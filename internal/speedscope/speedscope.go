// Package speedscope defines the canonical interchange profile every capture
// is normalized into, together with the helpers converters use to build it.
//
// The document shape is the speedscope file format: a named set of per-thread
// profiles sharing one deduplicated frame table.
package speedscope

// SchemaURL is written into the $schema field of every canonical profile.
const SchemaURL = "https://www.speedscope.app/file-format-schema.json"

// ProfileType distinguishes stack-sample profiles from open/close event
// profiles.
type ProfileType string

const (
	TypeSampled ProfileType = "sampled"
	TypeEvented ProfileType = "evented"
)

// Unit is the unit of sample weights and event timestamps.
type Unit string

const (
	UnitNone         Unit = "none"
	UnitNanoseconds  Unit = "nanoseconds"
	UnitMicroseconds Unit = "microseconds"
	UnitMilliseconds Unit = "milliseconds"
	UnitSeconds      Unit = "seconds"
	UnitBytes        Unit = "bytes"
)

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	switch u {
	case UnitNone, UnitNanoseconds, UnitMicroseconds, UnitMilliseconds, UnitSeconds, UnitBytes:
		return true
	}
	return false
}

// EventType is the kind of an evented-profile entry.
type EventType string

const (
	EventOpen  EventType = "O"
	EventClose EventType = "C"
)

// File is a canonical profile document.
type File struct {
	Schema             string    `json:"$schema" jsonschema:"description=Fixed schema identifier"`
	Name               string    `json:"name"`
	ActiveProfileIndex int       `json:"activeProfileIndex"`
	Profiles           []Profile `json:"profiles"`
	Shared             Shared    `json:"shared"`
	Exporter           string    `json:"exporter,omitempty" jsonschema:"description=Plugin that produced the profile"`
}

// Shared holds the frame table referenced by every profile in a file.
type Shared struct {
	Frames []Frame `json:"frames"`
}

// Frame is one entry of the shared frame table.
type Frame struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

// Profile is one thread's (or one process's) data.
type Profile struct {
	Type       ProfileType `json:"type" jsonschema:"enum=sampled,enum=evented"`
	Name       string      `json:"name"`
	Unit       Unit        `json:"unit" jsonschema:"enum=none,enum=nanoseconds,enum=microseconds,enum=milliseconds,enum=seconds,enum=bytes"`
	StartValue float64     `json:"startValue"`
	EndValue   float64     `json:"endValue"`

	// Samples and Weights are set on sampled profiles. Each sample lists
	// frame indices from the root of the stack to the leaf.
	Samples [][]int   `json:"samples,omitempty"`
	Weights []float64 `json:"weights,omitempty"`

	// Events is set on evented profiles.
	Events []Event `json:"events,omitempty"`
}

// Event is an open or close of a frame at a point in time.
type Event struct {
	Type  EventType `json:"type" jsonschema:"enum=O,enum=C"`
	At    float64   `json:"at"`
	Frame int       `json:"frame"`
}

// New returns an empty document with the schema set.
func New(name, exporter string) *File {
	return &File{
		Schema:   SchemaURL,
		Name:     name,
		Exporter: exporter,
		Shared:   Shared{Frames: []Frame{}},
		Profiles: []Profile{},
	}
}

// TotalSamples sums the sample counts of all profiles.
func (f *File) TotalSamples() int {
	n := 0
	for _, p := range f.Profiles {
		n += len(p.Samples)
	}
	return n
}
