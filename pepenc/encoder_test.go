package pepenc

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestEncoderTokens(t *testing.T) {
	e := &Encoder{}
	if e.Tokens() != Alphabet {
		t.Errorf("unexpected tokens: %q", e.Tokens())
	}
	e = &Encoder{VariableLength: true, AddStartTokens: true, AddStopTokens: true}
	if e.Tokens() != "-"+Alphabet+"^$" {
		t.Errorf("unexpected tokens: %q", e.Tokens())
	}
	if e.NumTokens() != 23 {
		t.Errorf("expected 23 tokens, but got %d", e.NumTokens())
	}
	if e.PaddedLength(9) != 11 {
		t.Errorf("expected padded length 11, but got %d", e.PaddedLength(9))
	}
}

func TestEncodeIndices(t *testing.T) {
	e := &Encoder{VariableLength: true, AddStartTokens: true, AddStopTokens: true}
	tensor, err := e.EncodeIndices([]string{"AC", "Y"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if tensor.Seqs != 2 || tensor.Steps != 5 || tensor.Depth != 1 {
		t.Fatalf("unexpected tensor shape: (%d, %d, %d)", tensor.Seqs,
			tensor.Steps, tensor.Depth)
	}
	// The pad token is index 0; start and stop follow the
	// twenty amino acids.
	expected := []float64{
		21, 1, 2, 22, 0,
		21, 20, 22, 0, 0,
	}
	if !reflect.DeepEqual(tensor.Data, expected) {
		t.Errorf("expected %v but got %v", expected, tensor.Data)
	}

	e.AddNormalizedPosition = true
	if _, err := e.EncodeIndices([]string{"AC"}, 3); err == nil {
		t.Error("expected error for positional features")
	}
}

func TestEncodeOneHot(t *testing.T) {
	e := &Encoder{}
	tensor, err := e.EncodeOneHot([]string{"CA"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tensor.Steps != 2 || tensor.Depth != 20 {
		t.Fatalf("unexpected tensor shape: (%d, %d, %d)", tensor.Seqs,
			tensor.Steps, tensor.Depth)
	}
	for step, symbol := range []int{1, 0} {
		for d := 0; d < 20; d++ {
			expected := 0.0
			if d == symbol {
				expected = 1
			}
			if tensor.At(0, step, d) != expected {
				t.Errorf("step %d component %d: expected %f but got %f",
					step, d, expected, tensor.At(0, step, d))
			}
		}
	}
}

func TestEncodeExtras(t *testing.T) {
	e := &Encoder{AddNormalizedPosition: true, AddNormalizedCentrality: true}
	tensor, err := e.EncodeOneHot([]string{"ACDEA"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if tensor.Depth != 22 {
		t.Fatalf("expected depth 22, but got %d", tensor.Depth)
	}
	positions := []float64{0, 0.25, 0.5, 0.75, 1}
	centralities := []float64{0, 0.5, 1, 0.5, 0}
	for step := range positions {
		if math.Abs(tensor.At(0, step, 20)-positions[step]) > 1e-9 {
			t.Errorf("step %d: expected position %f but got %f",
				step, positions[step], tensor.At(0, step, 20))
		}
		if math.Abs(tensor.At(0, step, 21)-centralities[step]) > 1e-9 {
			t.Errorf("step %d: expected centrality %f but got %f",
				step, centralities[step], tensor.At(0, step, 21))
		}
	}
}

func TestEncodeBlosum(t *testing.T) {
	e := &Encoder{VariableLength: true}
	tensor, err := e.EncodeBlosum([]string{"AW"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if tensor.Steps != 3 || tensor.Depth != 20 {
		t.Fatalf("unexpected tensor shape: (%d, %d, %d)", tensor.Seqs,
			tensor.Steps, tensor.Depth)
	}
	rowA, err := Blosum62().Row('A')
	if err != nil {
		t.Fatal(err)
	}
	for d, x := range rowA {
		if tensor.At(0, 0, d) != x {
			t.Errorf("component %d: expected %f but got %f", d, x, tensor.At(0, 0, d))
		}
	}
	// Padding timesteps are zero rows.
	for d := 0; d < 20; d++ {
		if tensor.At(0, 2, d) != 0 {
			t.Errorf("expected zero pad row, but component %d is %f",
				d, tensor.At(0, 2, d))
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	e := &Encoder{}
	if _, err := e.EncodeOneHot([]string{"AC"}, 0); err == nil {
		t.Error("expected error for invalid maximum length")
	}
	if _, err := e.EncodeOneHot([]string{"ACDE"}, 3); err == nil {
		t.Error("expected error for an overlong sequence")
	}
	if _, err := e.EncodeOneHot([]string{"AC"}, 3); err == nil {
		t.Error("expected error for a short fixed-length sequence")
	}
	if _, err := e.EncodeOneHot([]string{"AXC"}, 3); err == nil {
		t.Error("expected error for an unknown symbol")
	} else if !strings.Contains(err.Error(), "unknown symbol") {
		t.Errorf("unexpected error: %s", err)
	}

	e.VariableLength = true
	if _, err := e.EncodeOneHot([]string{"AC"}, 3); err != nil {
		t.Errorf("unexpected error for a short variable-length sequence: %s", err)
	}
}
