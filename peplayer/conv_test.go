package peplayer

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/serializer"
)

func TestAlignedConvErrors(t *testing.T) {
	c := anyvec32.CurrentCreator()
	if _, err := NewAlignedConv(c, 0, 3, map[int]int{3: 2}); err == nil {
		t.Error("expected error for zero timesteps")
	}
	if _, err := NewAlignedConv(c, 5, 3, map[int]int{}); err == nil {
		t.Error("expected error for no filters")
	}
	if _, err := NewAlignedConv(c, 5, 3, map[int]int{3: 0}); err == nil {
		t.Error("expected error for zero filter count")
	}
	if _, err := NewAlignedConv(c, 5, 3, map[int]int{-1: 2}); err == nil {
		t.Error("expected error for negative width")
	}
}

func TestAlignedConvWidthOne(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conv, err := NewAlignedConv(c, 4, 1, map[int]int{1: 1})
	if err != nil {
		t.Fatal(err)
	}
	conv.Convs[0].Filters.Vector.SetData(c.MakeNumericList([]float64{2}))
	conv.Convs[0].Biases.Vector.SetData(c.MakeNumericList([]float64{0.5}))

	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{1, 2, 3, 4})))
	out := conv.Apply(in, 1)
	assertClose(t, out.Output(), []float64{2.5, 4.5, 6.5, 8.5})
}

func TestAlignedConvAlignment(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conv, err := NewAlignedConv(c, 4, 1, map[int]int{3: 1})
	if err != nil {
		t.Fatal(err)
	}
	if conv.OutputSteps() != 4 || conv.OutputDepth() != 1 {
		t.Fatalf("unexpected output shape: (%d, %d)", conv.OutputSteps(),
			conv.OutputDepth())
	}
	conv.Convs[0].Biases.Vector.SetData(c.MakeNumericList([]float64{0}))
	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{1, 2, 3, 4})))

	// A center tap passes the sequence through unchanged.
	conv.Convs[0].Filters.Vector.SetData(c.MakeNumericList([]float64{0, 1, 0}))
	assertClose(t, conv.Apply(in, 1).Output(), []float64{1, 2, 3, 4})

	// A left tap shifts with a zero boundary.
	conv.Convs[0].Filters.Vector.SetData(c.MakeNumericList([]float64{1, 0, 0}))
	assertClose(t, conv.Apply(in, 1).Output(), []float64{0, 1, 2, 3})
}

func TestAlignedConvInterleave(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conv, err := NewAlignedConv(c, 3, 1, map[int]int{1: 1, 3: 1})
	if err != nil {
		t.Fatal(err)
	}
	if conv.OutputDepth() != 2 {
		t.Fatalf("expected output depth 2, but got %d", conv.OutputDepth())
	}
	conv.Convs[0].Filters.Vector.SetData(c.MakeNumericList([]float64{2}))
	conv.Convs[0].Biases.Vector.SetData(c.MakeNumericList([]float64{0}))
	conv.Convs[1].Filters.Vector.SetData(c.MakeNumericList([]float64{0, 1, 0}))
	conv.Convs[1].Biases.Vector.SetData(c.MakeNumericList([]float64{0}))

	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList([]float64{
		1, 2, 3,
		4, 5, 6,
	})))
	// Each timestep's branch outputs are adjacent in depth.
	assertClose(t, conv.Apply(in, 2).Output(), []float64{
		2, 1, 4, 2, 6, 3,
		8, 4, 10, 5, 12, 6,
	})
}

func TestAlignedConvProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conv, err := NewAlignedConv(c, 4, 2, map[int]int{1: 2, 3: 1})
	if err != nil {
		t.Fatal(err)
	}
	inVec := c.MakeVector(2 * 4 * 2)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewVar(inVec)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return conv.Apply(in, 2)
		},
		V: append([]*anydiff.Var{in}, conv.Parameters()...),
	}
	checker.FullCheck(t)
}

func TestAlignedConvSerialize(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conv, err := NewAlignedConv(c, 5, 3, map[int]int{2: 2, 4: 1})
	if err != nil {
		t.Fatal(err)
	}
	data, err := serializer.SerializeWithType(conv)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		t.Fatal(err)
	}
	conv1, ok := obj.(*AlignedConv)
	if !ok {
		t.Fatalf("expected *AlignedConv but got %T", obj)
	}

	inVec := c.MakeVector(5 * 3)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)
	diff := conv.Apply(in, 1).Output().Copy()
	diff.Sub(conv1.Apply(in, 1).Output())
	if anyvec.AbsMax(diff).(float32) > 1e-4 {
		t.Error("output changed after round trip")
	}
}

func assertClose(t *testing.T, actual anyvec.Vector, expected []float64) {
	t.Helper()
	data := actual.Data().([]float32)
	if len(data) != len(expected) {
		t.Errorf("expected length %d but got %d", len(expected), len(data))
		return
	}
	for i, x := range expected {
		if math.IsNaN(float64(data[i])) || math.Abs(x-float64(data[i])) > 1e-3 {
			t.Errorf("component %d: expected %f but got %f", i, x, data[i])
		}
	}
}
