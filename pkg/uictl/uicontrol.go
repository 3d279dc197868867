// Package uictl defines small read/write controls that let a UI observe a
// running capture without depending on its concrete type.
package uictl

import "golang.org/x/exp/constraints"

type Number interface {
	constraints.Integer | constraints.Float
}

// Knob is an on/off switch, such as pause.
type Knob interface {
	Read() bool
	On()
	Off()
	Toggle()
}

// Dial reads a single value.
type Dial[N Number] interface {
	Read() N
}

// CappedDial is a Dial with an upper bound. A zero max means unbounded.
type CappedDial[N Number] interface {
	Dial[N]
	Cap() (num, max N)
}

// Levels reads the latest window of samples.
type Levels[N Number] interface {
	Read() []N
}

// DialFunc adapts a getter to a Dial.
type DialFunc[N Number] func() N

func (f DialFunc[N]) Read() N { return f() }

// Capped bounds a Dial by limit.
func Capped[N Number](d Dial[N], limit N) CappedDial[N] {
	return cappedDial[N]{Dial: d, limit: limit}
}

type cappedDial[N Number] struct {
	Dial[N]
	limit N
}

func (c cappedDial[N]) Cap() (N, N) { return c.Read(), c.limit }

// Ratio is num/max clamped to [0, 1]. Unbounded dials report 0.
func Ratio[N Number](d CappedDial[N]) float64 {
	num, limit := d.Cap()
	if limit <= 0 {
		return 0
	}
	return min(float64(num)/float64(limit), 1)
}
