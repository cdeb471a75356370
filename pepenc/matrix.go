package pepenc

import "fmt"

// A Matrix is a symmetric amino-acid substitution matrix.
//
// Rows and columns are indexed in Alphabet order.
type Matrix struct {
	name string
	rows [20][20]float64
}

// newMatrix builds a Matrix from scores listed in a
// different residue order, remapping them to Alphabet
// order.
func newMatrix(name, order string, scores [20][20]float64) *Matrix {
	perm := make([]int, 20)
	for i := 0; i < len(order); i++ {
		perm[i] = alphabetIndex(order[i])
	}
	res := &Matrix{name: name}
	for i, row := range scores {
		for j, score := range row {
			res.rows[perm[i]][perm[j]] = score
		}
	}
	return res
}

func alphabetIndex(residue byte) int {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == residue {
			return i
		}
	}
	panic(fmt.Sprintf("residue not in alphabet: %q", string(residue)))
}

// Name returns the matrix's name.
func (m *Matrix) Name() string {
	return m.name
}

// Score returns the substitution score between two
// residues.
func (m *Matrix) Score(a, b byte) (float64, error) {
	rowA := m.row(a)
	rowB := m.row(b)
	if rowA == nil || rowB == nil {
		return 0, fmt.Errorf("no %s score for %q and %q", m.name,
			string(a), string(b))
	}
	return rowA[alphabetIndex(b)], nil
}

// Row returns a residue's 20-component matrix row.
func (m *Matrix) Row(residue byte) ([]float64, error) {
	row := m.row(residue)
	if row == nil {
		return nil, fmt.Errorf("no %s row for %q", m.name, string(residue))
	}
	return append([]float64{}, row...), nil
}

// row returns nil for symbols outside the alphabet, such
// as pad or start/stop tokens.
func (m *Matrix) row(residue byte) []float64 {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == residue {
			return m.rows[i][:]
		}
	}
	return nil
}

// Blosum62 returns the BLOSUM62 substitution matrix.
func Blosum62() *Matrix {
	return blosum62
}

// The published matrix lists residues in a different order
// than Alphabet.
const blosum62Order = "ARNDCQEGHILKMFPSTWYV"

var blosum62 = newMatrix("BLOSUM62", blosum62Order, [20][20]float64{
	{4, -1, -2, -2, 0, -1, -1, 0, -2, -1, -1, -1, -1, -2, -1, 1, 0, -3, -2, 0},
	{-1, 5, 0, -2, -3, 1, 0, -2, 0, -3, -2, 2, -1, -3, -2, -1, -1, -3, -2, -3},
	{-2, 0, 6, 1, -3, 0, 0, 0, 1, -3, -3, 0, -2, -3, -2, 1, 0, -4, -2, -3},
	{-2, -2, 1, 6, -3, 0, 2, -1, -1, -3, -4, -1, -3, -3, -1, 0, -1, -4, -3, -3},
	{0, -3, -3, -3, 9, -3, -4, -3, -3, -1, -1, -3, -1, -2, -3, -1, -1, -2, -2, -1},
	{-1, 1, 0, 0, -3, 5, 2, -2, 0, -3, -2, 1, 0, -3, -1, 0, -1, -2, -1, -2},
	{-1, 0, 0, 2, -4, 2, 5, -2, 0, -3, -3, 1, -2, -3, -1, 0, -1, -3, -2, -2},
	{0, -2, 0, -1, -3, -2, -2, 6, -2, -4, -4, -2, -3, -3, -2, 0, -2, -2, -3, -3},
	{-2, 0, 1, -1, -3, 0, 0, -2, 8, -3, -3, -1, -2, -1, -2, -1, -2, -2, 2, -3},
	{-1, -3, -3, -3, -1, -3, -3, -4, -3, 4, 2, -3, 1, 0, -3, -2, -1, -3, -1, 3},
	{-1, -2, -3, -4, -1, -2, -3, -4, -3, 2, 4, -2, 2, 0, -3, -2, -1, -2, -1, 1},
	{-1, 2, 0, -1, -3, 1, 1, -2, -1, -3, -2, 5, -1, -3, -1, 0, -1, -3, -2, -2},
	{-1, -1, -2, -3, -1, 0, -2, -3, -2, 1, 2, -1, 5, 0, -2, -1, -1, -1, -1, 1},
	{-2, -3, -3, -3, -2, -3, -3, -3, -1, 0, 0, -3, 0, 6, -4, -2, -2, 1, 3, -1},
	{-1, -2, -2, -1, -3, -1, -1, -2, -2, -3, -3, -1, -2, -4, 7, -1, -1, -4, -3, -2},
	{1, -1, 1, 0, -1, 0, 0, 0, -1, -2, -2, 0, -1, -2, -1, 4, 1, -3, -2, -2},
	{0, -1, 0, -1, -1, -1, -1, -2, -2, -1, -1, -1, -1, -2, -1, 1, 5, -2, -2, 0},
	{-3, -3, -4, -4, -2, -2, -3, -2, -2, -3, -2, -3, -1, 1, -4, -3, -2, 11, 2, -3},
	{-2, -2, -2, -3, -2, -1, -2, -3, 2, -1, -1, -2, -1, 3, -3, -2, -2, 2, 7, -1},
	{0, -3, -3, -3, -1, -2, -2, -3, -3, 3, 1, -2, 1, -1, -2, -2, 0, -3, -1, 4},
})
