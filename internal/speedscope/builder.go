package speedscope

import "sort"

// SampledBuilder assembles a file of sampled profiles over one shared frame
// table. Stacks are given root first.
type SampledBuilder struct {
	frames   *FrameTable
	unit     Unit
	profiles map[string]*Profile
	order    []string
}

// NewSampledBuilder returns a builder whose profiles all use unit.
func NewSampledBuilder(unit Unit) *SampledBuilder {
	return &SampledBuilder{
		frames:   NewFrameTable(),
		unit:     unit,
		profiles: make(map[string]*Profile),
	}
}

// Frames exposes the shared table so callers can intern frames up front.
func (b *SampledBuilder) Frames() *FrameTable {
	return b.frames
}

// Add records one sample of the given weight on the named profile. Empty
// stacks are dropped.
func (b *SampledBuilder) Add(profile string, stack []Frame, weight float64) {
	if len(stack) == 0 {
		return
	}
	idx := make([]int, len(stack))
	for i, fr := range stack {
		idx[i] = b.frames.Intern(fr)
	}
	b.AddIndices(profile, idx, weight)
}

// AddIndices records a sample whose frames were already interned.
func (b *SampledBuilder) AddIndices(profile string, stack []int, weight float64) {
	if len(stack) == 0 {
		return
	}
	p := b.profile(profile)
	p.Samples = append(p.Samples, stack)
	p.Weights = append(p.Weights, weight)
	p.EndValue += weight
}

func (b *SampledBuilder) profile(name string) *Profile {
	if p, ok := b.profiles[name]; ok {
		return p
	}
	p := &Profile{
		Type:    TypeSampled,
		Name:    name,
		Unit:    b.unit,
		Samples: [][]int{},
		Weights: []float64{},
	}
	b.profiles[name] = p
	b.order = append(b.order, name)
	return p
}

// Build returns the document. Profiles are ordered by total weight,
// heaviest first, and the heaviest is made active.
func (b *SampledBuilder) Build(name, exporter string) *File {
	f := New(name, exporter)
	f.Shared.Frames = b.frames.Frames()

	names := append([]string(nil), b.order...)
	sort.SliceStable(names, func(i, j int) bool {
		return b.profiles[names[i]].EndValue > b.profiles[names[j]].EndValue
	})

	for _, n := range names {
		f.Profiles = append(f.Profiles, *b.profiles[n])
	}
	return f
}
