package convert

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indragiek/uniprof/internal/speedscope"
)

// xctrace export deduplicates repeated elements: the first occurrence carries
// an id attribute, later ones only ref it.

type xtResult struct {
	Nodes []xtNode `xml:"node"`
}

type xtNode struct {
	Rows []xtRow `xml:"row"`
}

type xtRow struct {
	Thread    xtValue     `xml:"thread"`
	Weight    xtValue     `xml:"weight"`
	Backtrace xtBacktrace `xml:"backtrace"`
}

type xtValue struct {
	ID    string `xml:"id,attr"`
	Ref   string `xml:"ref,attr"`
	Fmt   string `xml:"fmt,attr"`
	Value string `xml:",chardata"`
}

type xtBacktrace struct {
	ID     string    `xml:"id,attr"`
	Ref    string    `xml:"ref,attr"`
	Frames []xtFrame `xml:"frame"`
}

type xtFrame struct {
	ID     string    `xml:"id,attr"`
	Ref    string    `xml:"ref,attr"`
	Name   string    `xml:"name,attr"`
	Binary *xtBinary `xml:"binary"`
}

type xtBinary struct {
	ID   string `xml:"id,attr"`
	Ref  string `xml:"ref,attr"`
	Name string `xml:"name,attr"`
	Path string `xml:"path,attr"`
}

type xtResolver struct {
	values     map[string]xtValue
	backtraces map[string][]int
	frames     map[string]int
	binaries   map[string]string
	table      *speedscope.FrameTable
}

// fromInstrumentsXML converts the time-profile table exported by
// `xctrace export`. Weights are in nanoseconds.
func fromInstrumentsXML(r io.Reader, name string) (*speedscope.File, error) {
	var res xtResult
	if err := xml.NewDecoder(r).Decode(&res); err != nil {
		return nil, err
	}

	b := speedscope.NewSampledBuilder(speedscope.UnitNanoseconds)
	rs := &xtResolver{
		values:     make(map[string]xtValue),
		backtraces: make(map[string][]int),
		frames:     make(map[string]int),
		binaries:   make(map[string]string),
		table:      b.Frames(),
	}

	rows := 0
	for _, n := range res.Nodes {
		for _, row := range n.Rows {
			rows++
			thread := rs.value(row.Thread)
			threadName := thread.Fmt
			if threadName == "" {
				threadName = name
			}

			w := 1.0
			if v := rs.value(row.Weight); strings.TrimSpace(v.Value) != "" {
				parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: bad weight %q", rows, v.Value)
				}
				w = parsed
			}

			b.AddIndices(threadName, rs.backtrace(row.Backtrace), w)
		}
	}
	if rows == 0 {
		return nil, fmt.Errorf("no time-profile rows found")
	}

	return b.Build(name, ""), nil
}

func (rs *xtResolver) value(v xtValue) xtValue {
	if v.Ref != "" {
		return rs.values[v.Ref]
	}
	if v.ID != "" {
		rs.values[v.ID] = v
	}
	return v
}

// backtrace returns interned frame indices, root first.
func (rs *xtResolver) backtrace(bt xtBacktrace) []int {
	if bt.Ref != "" {
		return rs.backtraces[bt.Ref]
	}

	stack := make([]int, 0, len(bt.Frames))
	for i := len(bt.Frames) - 1; i >= 0; i-- {
		stack = append(stack, rs.frame(bt.Frames[i]))
	}
	if bt.ID != "" {
		rs.backtraces[bt.ID] = stack
	}
	return stack
}

func (rs *xtResolver) frame(fr xtFrame) int {
	if fr.Ref != "" {
		if idx, ok := rs.frames[fr.Ref]; ok {
			return idx
		}
	}

	file := ""
	if fr.Binary != nil {
		if fr.Binary.Ref != "" {
			file = rs.binaries[fr.Binary.Ref]
		} else {
			file = fr.Binary.Path
			if file == "" {
				file = fr.Binary.Name
			}
			if fr.Binary.ID != "" {
				rs.binaries[fr.Binary.ID] = file
			}
		}
	}

	name := fr.Name
	if name == "" {
		name = "[unknown]"
	}
	idx := rs.table.Intern(speedscope.Frame{Name: name, File: file})
	if fr.ID != "" {
		rs.frames[fr.ID] = idx
	}
	return idx
}
