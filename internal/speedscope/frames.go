package speedscope

import (
	"strconv"

	"github.com/zeebo/xxh3"
)

// FrameTable deduplicates frames by name and source location, handing out
// stable indices into the table.
type FrameTable struct {
	frames []Frame
	index  map[uint64][]int
}

// NewFrameTable returns an empty table.
func NewFrameTable() *FrameTable {
	return &FrameTable{index: make(map[uint64][]int)}
}

// Intern returns the index of fr, adding it when not yet present.
func (t *FrameTable) Intern(fr Frame) int {
	key := frameKey(fr)
	for _, i := range t.index[key] {
		if t.frames[i] == fr {
			return i
		}
	}

	i := len(t.frames)
	t.frames = append(t.frames, fr)
	t.index[key] = append(t.index[key], i)
	return i
}

// Len returns the number of distinct frames.
func (t *FrameTable) Len() int {
	return len(t.frames)
}

// Frames returns the table contents. The slice must not be modified.
func (t *FrameTable) Frames() []Frame {
	if t.frames == nil {
		return []Frame{}
	}
	return t.frames
}

func frameKey(fr Frame) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(fr.Name)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(fr.File)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strconv.Itoa(fr.Line))
	_, _ = h.Write([]byte{':'})
	_, _ = h.WriteString(strconv.Itoa(fr.Col))
	return h.Sum64()
}
