// Package pepenc converts amino-acid sequences into the
// numeric representations consumed by sequence models.
package pepenc

import (
	"fmt"
	"strings"
)

// Alphabet contains the canonical amino acids, in the
// order used for symbol indices and matrix rows.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

// Special tokens appended around variable-length
// sequences.
const (
	PadToken   = '-'
	StartToken = '^'
	StopToken  = '$'
)

// An Encoder deterministically maps raw sequences to
// numeric tensors.
//
// The zero value encodes fixed-length sequences over the
// plain amino-acid alphabet.
type Encoder struct {
	// VariableLength permits sequences shorter than the
	// maximum length, padding them with PadToken.
	// The pad token occupies symbol index 0 so that index
	// encodings can mask it out.
	VariableLength bool

	// AddStartTokens prefixes each sequence with
	// StartToken.
	AddStartTokens bool

	// AddStopTokens suffixes each sequence with StopToken.
	AddStopTokens bool

	// AddNormalizedPosition appends each timestep's
	// position, scaled to [0, 1], as an extra feature
	// component.
	AddNormalizedPosition bool

	// AddNormalizedCentrality appends 1 minus each
	// timestep's normalized distance from the sequence
	// center as an extra feature component.
	AddNormalizedCentrality bool
}

// Tokens returns the vocabulary, in symbol-index order.
func (e *Encoder) Tokens() string {
	var b strings.Builder
	if e.VariableLength {
		b.WriteByte(PadToken)
	}
	b.WriteString(Alphabet)
	if e.AddStartTokens {
		b.WriteByte(StartToken)
	}
	if e.AddStopTokens {
		b.WriteByte(StopToken)
	}
	return b.String()
}

// NumTokens returns the vocabulary size.
func (e *Encoder) NumTokens() int {
	return len(e.Tokens())
}

// NumExtraDims returns the number of positional feature
// components appended to each timestep.
func (e *Encoder) NumExtraDims() int {
	var n int
	if e.AddNormalizedPosition {
		n++
	}
	if e.AddNormalizedCentrality {
		n++
	}
	return n
}

// PaddedLength returns the number of timesteps produced
// for sequences of at most maxLength symbols.
func (e *Encoder) PaddedLength(maxLength int) int {
	res := maxLength
	if e.AddStartTokens {
		res++
	}
	if e.AddStopTokens {
		res++
	}
	return res
}

// EncodeIndices encodes sequences as one symbol index per
// timestep, for use with a learned embedding.
//
// Positional feature components cannot be mixed into an
// index representation, so the positional flags must be
// unset.
func (e *Encoder) EncodeIndices(seqs []string, maxLength int) (*Tensor, error) {
	if e.NumExtraDims() > 0 {
		return nil, fmt.Errorf("cannot add positional features to an index encoding")
	}
	rows, err := e.indexRows(seqs, maxLength)
	if err != nil {
		return nil, err
	}
	steps := e.PaddedLength(maxLength)
	res := &Tensor{Seqs: len(seqs), Steps: steps, Depth: 1}
	res.Data = make([]float64, 0, len(seqs)*steps)
	for _, row := range rows {
		for _, idx := range row {
			res.Data = append(res.Data, float64(idx))
		}
	}
	return res, nil
}

// EncodeOneHot encodes each timestep as a binary indicator
// vector over the vocabulary, plus any positional feature
// components.
func (e *Encoder) EncodeOneHot(seqs []string, maxLength int) (*Tensor, error) {
	rows, err := e.indexRows(seqs, maxLength)
	if err != nil {
		return nil, err
	}
	steps := e.PaddedLength(maxLength)
	depth := e.NumTokens() + e.NumExtraDims()
	res := &Tensor{
		Seqs:  len(seqs),
		Steps: steps,
		Depth: depth,
		Data:  make([]float64, len(seqs)*steps*depth),
	}
	for i, row := range rows {
		for j, idx := range row {
			res.Data[(i*steps+j)*depth+idx] = 1
			e.putExtras(res, i, j)
		}
	}
	return res, nil
}

// EncodeMatrixRows encodes each timestep as its row of a
// substitution matrix, plus any positional feature
// components.
//
// Pad, start, and stop tokens become zero rows.
func (e *Encoder) EncodeMatrixRows(m *Matrix, seqs []string,
	maxLength int) (*Tensor, error) {
	rows, err := e.indexRows(seqs, maxLength)
	if err != nil {
		return nil, err
	}
	tokens := e.Tokens()
	steps := e.PaddedLength(maxLength)
	depth := len(Alphabet) + e.NumExtraDims()
	res := &Tensor{
		Seqs:  len(seqs),
		Steps: steps,
		Depth: depth,
		Data:  make([]float64, len(seqs)*steps*depth),
	}
	for i, row := range rows {
		for j, idx := range row {
			if matRow := m.row(tokens[idx]); matRow != nil {
				copy(res.Data[(i*steps+j)*depth:], matRow)
			}
			e.putExtras(res, i, j)
		}
	}
	return res, nil
}

// EncodeBlosum is EncodeMatrixRows with the BLOSUM62
// matrix.
func (e *Encoder) EncodeBlosum(seqs []string, maxLength int) (*Tensor, error) {
	return e.EncodeMatrixRows(Blosum62(), seqs, maxLength)
}

// EncodePMBEC is EncodeMatrixRows with the PMBEC matrix.
func (e *Encoder) EncodePMBEC(seqs []string, maxLength int) (*Tensor, error) {
	return e.EncodeMatrixRows(PMBEC(), seqs, maxLength)
}

func (e *Encoder) putExtras(t *Tensor, seq, step int) {
	pos := 0.0
	if t.Steps > 1 {
		pos = float64(step) / float64(t.Steps-1)
	}
	off := (seq*t.Steps+step+1)*t.Depth - e.NumExtraDims()
	if e.AddNormalizedPosition {
		t.Data[off] = pos
		off++
	}
	if e.AddNormalizedCentrality {
		centrality := 2*pos - 1
		if centrality < 0 {
			centrality = -centrality
		}
		t.Data[off] = 1 - centrality
	}
}

// indexRows maps each sequence to a full-length row of
// symbol indices, adding start/stop tokens and padding.
func (e *Encoder) indexRows(seqs []string, maxLength int) ([][]int, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("invalid maximum length: %d", maxLength)
	}
	tokens := e.Tokens()
	index := map[byte]int{}
	for i := 0; i < len(tokens); i++ {
		index[tokens[i]] = i
	}

	steps := e.PaddedLength(maxLength)
	res := make([][]int, len(seqs))
	for i, seq := range seqs {
		if len(seq) > maxLength {
			return nil, fmt.Errorf("sequence %q longer than maximum length %d",
				seq, maxLength)
		}
		if !e.VariableLength && len(seq) != maxLength {
			return nil, fmt.Errorf("sequence %q is not exactly %d symbols",
				seq, maxLength)
		}
		row := make([]int, 0, steps)
		if e.AddStartTokens {
			row = append(row, index[StartToken])
		}
		for j := 0; j < len(seq); j++ {
			idx, ok := index[seq[j]]
			if !ok {
				return nil, fmt.Errorf("unknown symbol %q in sequence %q",
					string(seq[j]), seq)
			}
			row = append(row, idx)
		}
		if e.AddStopTokens {
			row = append(row, index[StopToken])
		}
		for len(row) < steps {
			row = append(row, index[PadToken])
		}
		res[i] = row
	}
	return res, nil
}
