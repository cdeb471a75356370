package pepenc

import "testing"

func TestBlosum62Scores(t *testing.T) {
	m := Blosum62()
	cases := []struct {
		A, B  byte
		Score float64
	}{
		{'A', 'A', 4},
		{'W', 'W', 11},
		{'C', 'C', 9},
		{'A', 'R', -1},
		{'W', 'G', -2},
		{'L', 'I', 2},
	}
	for _, test := range cases {
		score, err := m.Score(test.A, test.B)
		if err != nil {
			t.Errorf("%c-%c: %s", test.A, test.B, err)
		} else if score != test.Score {
			t.Errorf("%c-%c: expected %f but got %f", test.A, test.B,
				test.Score, score)
		}
	}
}

func TestMatrixSymmetry(t *testing.T) {
	for _, m := range []*Matrix{Blosum62(), PMBEC()} {
		for i := 0; i < len(Alphabet); i++ {
			for j := 0; j < len(Alphabet); j++ {
				a, b := Alphabet[i], Alphabet[j]
				s1, err := m.Score(a, b)
				if err != nil {
					t.Fatal(err)
				}
				s2, err := m.Score(b, a)
				if err != nil {
					t.Fatal(err)
				}
				if s1 != s2 {
					t.Errorf("%s: %c-%c is %f but %c-%c is %f", m.Name(),
						a, b, s1, b, a, s2)
				}
			}
		}
	}
}

func TestMatrixErrors(t *testing.T) {
	m := Blosum62()
	if _, err := m.Row('-'); err == nil {
		t.Error("expected error for the pad token")
	}
	if _, err := m.Score('A', '^'); err == nil {
		t.Error("expected error for the start token")
	}
}

func TestPMBECDiagonal(t *testing.T) {
	m := PMBEC()
	for i := 0; i < len(Alphabet); i++ {
		residue := Alphabet[i]
		self, err := m.Score(residue, residue)
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j < len(Alphabet); j++ {
			if i == j {
				continue
			}
			other, err := m.Score(residue, Alphabet[j])
			if err != nil {
				t.Fatal(err)
			}
			if other >= self {
				t.Errorf("%c: self score %f not above %c score %f",
					residue, self, Alphabet[j], other)
			}
		}
	}
}
