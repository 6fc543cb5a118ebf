package gate

import (
	"reflect"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Composite combines child gates with a boolean operator. Its channels are the
// union of the children's channels in first-seen order.
type Composite struct {
	base
	op       Kind
	children []Gate
	childPos [][]int // per child: positions of its channels within base.channels
}

// parent is implemented by gates that contain other gates.
type parent interface {
	Children() []Gate
}

// NewComposite builds a boolean combination. KindAnd, KindOr and KindXor
// need at least two children, KindNot exactly one. Xor of more than two
// children selects events inside an odd number of them.
func NewComposite(op Kind, children []Gate, opts ...Option) (*Composite, error) {
	switch op {
	case KindAnd, KindOr, KindXor:
		if len(children) < 2 {
			return nil, flowerr.Dimensionf("%s gate needs at least 2 children, got %d", op, len(children))
		}
	case KindNot:
		if len(children) != 1 {
			return nil, flowerr.Dimensionf("not gate needs exactly 1 child, got %d", len(children))
		}
	default:
		return nil, flowerr.Domainf("unknown composite operator %q", op)
	}
	for i, ch := range children {
		if ch == nil {
			return nil, flowerr.Dimensionf("child %d is nil", i)
		}
	}
	if err := checkAcyclic(children); err != nil {
		return nil, err
	}

	var union []string
	index := map[string]int{}
	childPos := make([][]int, len(children))
	for i, ch := range children {
		names := ch.Channels()
		pos := make([]int, len(names))
		for k, n := range names {
			j, ok := index[n]
			if !ok {
				j = len(union)
				index[n] = j
				union = append(union, n)
			}
			pos[k] = j
		}
		childPos[i] = pos
	}
	b, err := newBase(union, opts)
	if err != nil {
		return nil, err
	}
	return &Composite{
		base:     b,
		op:       op,
		children: append([]Gate(nil), children...),
		childPos: childPos,
	}, nil
}

// And is the intersection of gs.
func And(gs ...Gate) (*Composite, error) { return NewComposite(KindAnd, gs) }

// Or is the union of gs.
func Or(gs ...Gate) (*Composite, error) { return NewComposite(KindOr, gs) }

// Xor selects events inside an odd number of gs.
func Xor(gs ...Gate) (*Composite, error) { return NewComposite(KindXor, gs) }

// Not is the complement of g.
func Not(g Gate) (*Composite, error) { return NewComposite(KindNot, []Gate{g}) }

func (c *Composite) Kind() Kind { return c.op }

// Children returns the child gates.
func (c *Composite) Children() []Gate { return append([]Gate(nil), c.children...) }

func (c *Composite) EvaluateColumns(src matrix.Source, cols []int) (Mask, error) {
	if len(cols) != len(c.channels) {
		return nil, flowerr.Dimensionf("gate %s reads %d channels, got %d columns", c.id, len(c.channels), len(cols))
	}
	var acc Mask
	for i, ch := range c.children {
		sub := make([]int, len(c.childPos[i]))
		for k, p := range c.childPos[i] {
			sub[k] = cols[p]
		}
		m, err := ch.EvaluateColumns(src, sub)
		if err != nil {
			return nil, flowerr.Wrapf(err, "%s gate %s child %d", c.op, c.id, i)
		}
		switch {
		case c.op == KindNot:
			return m.Not(), nil
		case acc == nil:
			acc = m
		case c.op == KindAnd:
			if acc, err = acc.And(m); err != nil {
				return nil, err
			}
		case c.op == KindXor:
			if acc, err = acc.Xor(m); err != nil {
				return nil, err
			}
		default:
			if acc, err = acc.Or(m); err != nil {
				return nil, err
			}
		}
	}
	return acc, nil
}

// checkAcyclic walks the children of every parent gate and rejects a gate
// that is reachable from itself. Gates of non-comparable dynamic type cannot
// be tracked by identity and are only descended into.
func checkAcyclic(children []Gate) error {
	onPath := map[Gate]bool{}
	var visit func(g Gate, depth int) error
	visit = func(g Gate, depth int) error {
		if depth > 10000 {
			return flowerr.Dimensionf("gate nesting deeper than %d, likely a cycle", 10000)
		}
		comparable := reflect.TypeOf(g).Comparable()
		if comparable {
			if onPath[g] {
				return flowerr.Dimensionf("gate %s contains itself", g.ID())
			}
			onPath[g] = true
			defer delete(onPath, g)
		}
		if p, ok := g.(parent); ok {
			for _, ch := range p.Children() {
				if ch == nil {
					continue
				}
				if err := visit(ch, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, g := range children {
		if err := visit(g, 0); err != nil {
			return err
		}
	}
	return nil
}
