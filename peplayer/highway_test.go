package peplayer

import (
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/serializer"
)

func TestHighwayGate(t *testing.T) {
	c := anyvec32.CurrentCreator()
	h := NewHighway(c, 2, nil)
	h.Gate.Weights.Vector.Scale(c.MakeNumeric(0))
	h.Transform.Weights.Vector.Scale(c.MakeNumeric(0))
	h.Transform.Biases.Vector.SetData(c.MakeNumericList([]float64{0.5, -0.25}))

	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{
		1, 2,
		-3, 4,
	})))

	// A saturated-open gate passes only the transform.
	h.Gate.Biases.Vector.SetData(c.MakeNumericList([]float64{12, 12}))
	assertClose(t, h.Apply(in, 2).Output(), []float64{
		0.5, -0.25,
		0.5, -0.25,
	})

	// A saturated-closed gate passes only the input.
	h.Gate.Biases.Vector.SetData(c.MakeNumericList([]float64{-12, -12}))
	assertClose(t, h.Apply(in, 2).Output(), []float64{
		1, 2,
		-3, 4,
	})
}

func TestHighwayProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	h := NewHighway(c, 3, anynet.Tanh)
	inVec := c.MakeVector(2 * 3)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewVar(inVec)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return h.Apply(in, 2)
		},
		V: append([]*anydiff.Var{in}, h.Parameters()...),
	}
	checker.FullCheck(t)
}

func TestHighwaySerialize(t *testing.T) {
	c := anyvec32.CurrentCreator()
	h := NewHighway(c, 3, anynet.Tanh)
	data, err := serializer.SerializeWithType(h)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		t.Fatal(err)
	}
	h1, ok := obj.(*Highway)
	if !ok {
		t.Fatalf("expected *Highway but got %T", obj)
	}
	if h1.InCount != 3 {
		t.Errorf("expected InCount 3, but got %d", h1.InCount)
	}

	inVec := c.MakeVector(3)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)
	diff := h.Apply(in, 1).Output().Copy()
	diff.Sub(h1.Apply(in, 1).Output())
	if anyvec.AbsMax(diff).(float32) > 1e-4 {
		t.Error("output changed after round trip")
	}
}
