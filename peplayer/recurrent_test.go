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

func TestRecurrentErrors(t *testing.T) {
	c := anyvec32.CurrentCreator()
	if _, err := NewRecurrent(c, 4, 3, nil, "lstm", true, false); err == nil {
		t.Error("expected error for no layer sizes")
	}
	if _, err := NewRecurrent(c, 4, 3, []int{5, 0}, "lstm", true, false); err == nil {
		t.Error("expected error for zero layer size")
	}
	if _, err := NewRecurrent(c, 4, 3, []int{5}, "qwerty", true, false); err == nil {
		t.Error("expected error for unknown cell type")
	}
}

func TestRecurrentShapes(t *testing.T) {
	c := anyvec32.CurrentCreator()
	rec, err := NewRecurrent(c, 4, 3, []int{5}, "lstm", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if rec.OutputDepth != 10 || rec.OutputSteps() != 1 {
		t.Errorf("unexpected output shape: (%d, %d)", rec.OutputSteps(),
			rec.OutputDepth)
	}
	inVec := c.MakeVector(2 * 4 * 3)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)
	if out := rec.Apply(in, 2); out.Output().Len() != 20 {
		t.Errorf("expected output length 20, but got %d", out.Output().Len())
	}

	rec.ReturnSequences = true
	if rec.OutputSteps() != 4 {
		t.Errorf("expected 4 output steps, but got %d", rec.OutputSteps())
	}
	if out := rec.Apply(in, 2); out.Output().Len() != 80 {
		t.Errorf("expected output length 80, but got %d", out.Output().Len())
	}
}

func TestRecurrentTail(t *testing.T) {
	c := anyvec32.CurrentCreator()
	rec, err := NewRecurrent(c, 3, 2, []int{2}, "gru", false, false)
	if err != nil {
		t.Fatal(err)
	}
	full := &Recurrent{
		InputSteps:      rec.InputSteps,
		InputDepth:      rec.InputDepth,
		OutputDepth:     rec.OutputDepth,
		ReturnSequences: true,
		Stages:          rec.Stages,
	}

	inVec := c.MakeVector(2 * 3 * 2)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)

	tail := rec.Apply(in, 2).Output()
	all := full.Apply(in, 2).Output()
	for i := 0; i < 2; i++ {
		lastStep := all.Slice((i*3+2)*2, (i*3+3)*2)
		diff := tail.Slice(i*2, (i+1)*2).Copy()
		diff.Sub(lastStep)
		if anyvec.AbsMax(diff).(float32) > 1e-4 {
			t.Errorf("sample %d: tail does not match final timestep", i)
		}
	}
}

func TestRecurrentProp(t *testing.T) {
	c := anyvec32.CurrentCreator()
	configs := []struct {
		Name      string
		CellType  string
		Bidir     bool
		RetSeqs   bool
		NumLayers int
	}{
		{"Forward", "lstm", false, false, 1},
		{"Bidir", "lstm", true, false, 1},
		{"GRUSequences", "gru", false, true, 1},
		{"Stacked", "gru", true, true, 2},
	}
	for _, conf := range configs {
		t.Run(conf.Name, func(t *testing.T) {
			sizes := make([]int, conf.NumLayers)
			for i := range sizes {
				sizes[i] = 2
			}
			rec, err := NewRecurrent(c, 3, 2, sizes, conf.CellType,
				conf.Bidir, conf.RetSeqs)
			if err != nil {
				t.Fatal(err)
			}
			inVec := c.MakeVector(2 * 3 * 2)
			anyvec.Rand(inVec, anyvec.Normal, nil)
			in := anydiff.NewVar(inVec)
			checker := &anydifftest.ResChecker{
				F: func() anydiff.Res {
					return rec.Apply(in, 2)
				},
				V: append([]*anydiff.Var{in}, rec.Parameters()...),
			}
			checker.FullCheck(t)
		})
	}
}

func TestRecurrentSerialize(t *testing.T) {
	c := anyvec32.CurrentCreator()
	rec, err := NewRecurrent(c, 3, 2, []int{2, 3}, "gru", true, true)
	if err != nil {
		t.Fatal(err)
	}
	data, err := serializer.SerializeWithType(rec)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		t.Fatal(err)
	}
	rec1, ok := obj.(*Recurrent)
	if !ok {
		t.Fatalf("expected *Recurrent but got %T", obj)
	}
	if rec1.OutputDepth != 6 || !rec1.ReturnSequences {
		t.Errorf("unexpected fields: %+v", rec1)
	}

	inVec := c.MakeVector(3 * 2)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)
	diff := rec.Apply(in, 1).Output().Copy()
	diff.Sub(rec1.Apply(in, 1).Output())
	if anyvec.AbsMax(diff).(float32) > 1e-4 {
		t.Error("output changed after round trip")
	}
}

func TestTimeDistributed(t *testing.T) {
	c := anyvec32.CurrentCreator()
	fc := anynet.NewFC(c, 2, 3)
	td := &TimeDistributed{Steps: 4, Layer: fc}

	inVec := c.MakeVector(2 * 4 * 2)
	anyvec.Rand(inVec, anyvec.Normal, nil)
	in := anydiff.NewConst(inVec)

	diff := td.Apply(in, 2).Output().Copy()
	diff.Sub(fc.Apply(in, 8).Output())
	if anyvec.AbsMax(diff).(float32) > 1e-4 {
		t.Error("expected per-timestep application to match flat batching")
	}
	if len(td.Parameters()) != 2 {
		t.Errorf("expected 2 parameters, but got %d", len(td.Parameters()))
	}
}

func TestTimeDistributedSerialize(t *testing.T) {
	c := anyvec32.CurrentCreator()
	td := &TimeDistributed{Steps: 4, Layer: anynet.NewFC(c, 2, 3)}
	data, err := serializer.SerializeWithType(td)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		t.Fatal(err)
	}
	td1, ok := obj.(*TimeDistributed)
	if !ok {
		t.Fatalf("expected *TimeDistributed but got %T", obj)
	}
	if td1.Steps != 4 {
		t.Errorf("expected 4 steps, but got %d", td1.Steps)
	}
}
