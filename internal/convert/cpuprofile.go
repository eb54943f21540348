package convert

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/indragiek/uniprof/internal/speedscope"
)

type cpuProfile struct {
	Nodes      []cpuNode `json:"nodes"`
	StartTime  float64   `json:"startTime"`
	EndTime    float64   `json:"endTime"`
	Samples    []int     `json:"samples"`
	TimeDeltas []float64 `json:"timeDeltas"`
}

type cpuNode struct {
	ID        int          `json:"id"`
	CallFrame cpuCallFrame `json:"callFrame"`
	Children  []int        `json:"children"`
	Parent    int          `json:"parent"`
}

type cpuCallFrame struct {
	FunctionName string `json:"functionName"`
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// fromCPUProfile converts a V8 .cpuprofile. Each sample is weighted by the
// time until the next sample; positions are 0-based in the source and made
// 1-based here.
func fromCPUProfile(r io.Reader, name string) (*speedscope.File, error) {
	var cp cpuProfile
	if err := json.NewDecoder(r).Decode(&cp); err != nil {
		return nil, err
	}
	if len(cp.TimeDeltas) != 0 && len(cp.TimeDeltas) != len(cp.Samples) {
		return nil, fmt.Errorf("%d samples but %d time deltas", len(cp.Samples), len(cp.TimeDeltas))
	}

	nodes := make(map[int]*cpuNode, len(cp.Nodes))
	parent := make(map[int]int, len(cp.Nodes))
	for i := range cp.Nodes {
		n := &cp.Nodes[i]
		nodes[n.ID] = n
		if n.Parent != 0 {
			parent[n.ID] = n.Parent
		}
	}
	for _, n := range cp.Nodes {
		for _, c := range n.Children {
			parent[c] = n.ID
		}
	}

	b := speedscope.NewSampledBuilder(speedscope.UnitMicroseconds)
	stacks := make(map[int][]int)

	for i, id := range cp.Samples {
		stack, ok := stacks[id]
		if !ok {
			stack = cpuStack(b.Frames(), nodes, parent, id)
			stacks[id] = stack
		}

		w := 1.0
		if len(cp.TimeDeltas) > 0 {
			if i+1 < len(cp.TimeDeltas) {
				w = cp.TimeDeltas[i+1]
			} else {
				w = cp.TimeDeltas[i]
			}
			if w < 0 {
				w = 0
			}
		}
		b.AddIndices(name, stack, w)
	}

	return b.Build(name, ""), nil
}

// cpuStack walks from node id to the root and returns interned frame indices
// root first. The synthetic "(root)" node is dropped.
func cpuStack(ft *speedscope.FrameTable, nodes map[int]*cpuNode, parent map[int]int, id int) []int {
	var rev []int
	seen := make(map[int]bool)

	for cur, ok := id, true; ok && !seen[cur]; cur, ok = parent[cur] {
		seen[cur] = true
		n := nodes[cur]
		if n == nil {
			break
		}
		if n.CallFrame.FunctionName == "(root)" {
			continue
		}
		fn := n.CallFrame.FunctionName
		if fn == "" {
			fn = "(anonymous)"
		}
		rev = append(rev, ft.Intern(speedscope.Frame{
			Name: fn,
			File: n.CallFrame.URL,
			Line: n.CallFrame.LineNumber + 1,
			Col:  n.CallFrame.ColumnNumber + 1,
		}))
	}

	stack := make([]int, len(rev))
	for i, f := range rev {
		stack[len(rev)-1-i] = f
	}
	return stack
}
