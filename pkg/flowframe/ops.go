package flowframe

import (
	"github.com/google/uuid"

	"flowcore/pkg/compensation"
	"flowcore/pkg/fcs"
	"flowcore/pkg/flowerr"
	"flowcore/pkg/gate"
	"flowcore/pkg/matrix"
	"flowcore/pkg/transform"
)

// Compensate returns a frame with m applied to its channels. A nil m uses
// the spillover matrix declared in the file; MissingDataError when there is
// none.
func (f *Frame) Compensate(m *compensation.Matrix) (*Frame, error) {
	if f.comp != nil {
		return nil, flowerr.Domainf("frame %s is already compensated", f.id)
	}
	m, err := compensation.Derive(m, f.Keywords())
	if err != nil {
		return nil, flowerr.Wrapf(err, "frame %s", f.id)
	}
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	out, err := f.engine.Apply(d, f.names, m)
	if err != nil {
		return nil, flowerr.Wrapf(err, "frame %s", f.id)
	}
	fr := f.derive("comp", out)
	fr.comp = m
	return fr, nil
}

// Transform returns a frame with t applied to channel and recorded in the
// channel's history.
func (f *Frame) Transform(channel string, t transform.Transform) (*Frame, error) {
	if t == nil {
		return nil, flowerr.MissingDataf("nil transform")
	}
	j, err := f.ColumnIndex(channel)
	if err != nil {
		return nil, err
	}
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	out, err := transform.ApplyColumns(t, d, []int{j})
	if err != nil {
		return nil, err
	}
	fr := f.derive(t.Spec().Name, out)
	fr.history = cloneHistory(f.history)
	fr.history[channel] = append(fr.history[channel], t)
	return fr, nil
}

// Revert undoes every transform recorded for channel, newest first, and
// clears its history.
func (f *Frame) Revert(channel string) (*Frame, error) {
	j, err := f.ColumnIndex(channel)
	if err != nil {
		return nil, err
	}
	h := f.history[channel]
	if len(h) == 0 {
		return f, nil
	}
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	out := d.Clone()
	rows, _ := out.Shape()
	for i := 0; i < rows; i++ {
		v := out.At(i, j)
		for k := len(h) - 1; k >= 0; k-- {
			v = h[k].Inverse(v)
		}
		out.Set(i, j, v)
	}
	fr := f.derive("raw", out)
	fr.history = cloneHistory(f.history)
	delete(fr.history, channel)
	return fr, nil
}

// Mask evaluates g against the frame's events.
func (f *Frame) Mask(g gate.Gate) (gate.Mask, error) {
	m, err := gate.Evaluate(g, f)
	if err != nil {
		return nil, flowerr.Wrapf(err, "frame %s", f.id)
	}
	return m, nil
}

// Count returns the number of events inside g.
func (f *Frame) Count(g gate.Gate) (int, error) {
	m, err := f.Mask(g)
	if err != nil {
		return 0, err
	}
	return m.Count(), nil
}

// Gate returns a frame holding only the events inside g. Index still maps
// each event to its original row.
func (f *Frame) Gate(g gate.Gate) (*Frame, error) {
	m, err := f.Mask(g)
	if err != nil {
		return nil, err
	}
	return f.filter("gated", m)
}

// Filter keeps the events selected by m.
func (f *Frame) Filter(m gate.Mask) (*Frame, error) {
	return f.filter("filtered", m)
}

func (f *Frame) filter(suffix string, m gate.Mask) (*Frame, error) {
	if len(m) != f.rows {
		return nil, flowerr.Dimensionf("mask has %d entries for %d events", len(m), f.rows)
	}
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	keep := m.Indices()
	out, err := d.SelectRows(keep)
	if err != nil {
		return nil, err
	}
	index := make([]int, len(keep))
	for k, i := range keep {
		if f.index != nil {
			index[k] = f.index[i]
		} else {
			index[k] = i
		}
	}
	fr := f.derive(suffix, out)
	fr.index = index
	return fr, nil
}

// Select returns a frame with only the named channels, in the given order.
func (f *Frame) Select(channels ...string) (*Frame, error) {
	if len(channels) == 0 {
		return nil, flowerr.Dimensionf("select needs at least one channel")
	}
	cols, err := matrix.Resolve(f, channels)
	if err != nil {
		return nil, flowerr.Wrapf(err, "frame %s", f.id)
	}
	seen := make(map[int]bool, len(cols))
	for k, j := range cols {
		if seen[j] {
			return nil, flowerr.Dimensionf("channel %q selected twice", channels[k])
		}
		seen[j] = true
	}
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	out, err := d.SelectColumns(cols)
	if err != nil {
		return nil, err
	}
	fr := f.derive("select", out)
	fr.channels = make([]fcs.Channel, len(cols))
	fr.names = make([]string, len(cols))
	fr.history = map[string][]transform.Transform{}
	for k, j := range cols {
		fr.channels[k] = f.channels[j]
		fr.names[k] = f.names[j]
		if h, ok := f.history[f.names[j]]; ok {
			fr.history[f.names[j]] = h
		}
	}
	return fr, nil
}

// WithMeta returns a frame with key set in its metadata. The events,
// loaded or not, are shared with f.
func (f *Frame) WithMeta(key, value string) *Frame {
	fr := *f
	fr.meta = f.Meta()
	fr.meta[key] = value
	return &fr
}

// Copy returns an independent frame with its own ID. An empty id generates
// one.
func (f *Frame) Copy(id string) (*Frame, error) {
	d, err := f.AsArray()
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	fr := f.derive("copy", d)
	fr.id = id
	return fr, nil
}

func cloneHistory(h map[string][]transform.Transform) map[string][]transform.Transform {
	out := make(map[string][]transform.Transform, len(h))
	for k, v := range h {
		out[k] = append([]transform.Transform(nil), v...)
	}
	return out
}
