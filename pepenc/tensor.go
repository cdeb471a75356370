package pepenc

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Tensor is a batch of encoded sequences, stored
// row-major: sequence-major, then timestep, then feature
// component.
type Tensor struct {
	Seqs  int
	Steps int
	Depth int

	Data []float64
}

// At returns the component at a position in the tensor.
func (t *Tensor) At(seq, step, dim int) float64 {
	return t.Data[(seq*t.Steps+step)*t.Depth+dim]
}

// Vector converts the tensor to a packed vector for use
// with a network.
func (t *Tensor) Vector(c anyvec.Creator) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(t.Data))
}

// Const converts the tensor to a constant result.
func (t *Tensor) Const(c anyvec.Creator) anydiff.Res {
	return anydiff.NewConst(t.Vector(c))
}
