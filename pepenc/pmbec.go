package pepenc

// PMBEC returns the PMBEC amino-acid covariance matrix.
//
// TODO: replace the class-derived approximation below with
// the published PMBEC covariance matrix (Kim et al., BMC
// Bioinformatics 2009).
func PMBEC() *Matrix {
	return pmbec
}

// Residue classes used to approximate PMBEC covariances:
// small covariances within a physicochemical class,
// near-zero or slightly negative across classes.
var pmbecClasses = map[byte]int{
	'A': 0, 'V': 0, 'L': 0, 'I': 0, 'M': 0, 'C': 0,
	'F': 1, 'W': 1, 'Y': 1,
	'S': 2, 'T': 2, 'N': 2, 'Q': 2,
	'K': 3, 'R': 3, 'H': 3,
	'D': 4, 'E': 4,
	'G': 5, 'P': 5,
}

var pmbec = newMatrix("PMBEC", Alphabet, pmbecScores())

func pmbecScores() [20][20]float64 {
	var scores [20][20]float64
	for i := 0; i < len(Alphabet); i++ {
		for j := 0; j < len(Alphabet); j++ {
			scores[i][j] = pmbecScore(Alphabet[i], Alphabet[j])
		}
	}
	return scores
}

func pmbecScore(a, b byte) float64 {
	if a == b {
		if a == 'C' {
			return 0.40
		}
		return 0.25
	}
	classA, classB := pmbecClasses[a], pmbecClasses[b]
	switch {
	case classA == classB:
		return 0.12
	case bothIn(classA, classB, 0, 1):
		// Aliphatic and aromatic residues covary.
		return 0.06
	case bothIn(classA, classB, 2, 3), bothIn(classA, classB, 2, 4):
		// Polar residues covary weakly with charged ones.
		return 0.04
	case bothIn(classA, classB, 3, 4):
		// Opposite charges.
		return 0.02
	default:
		return -0.02
	}
}

func bothIn(classA, classB, x, y int) bool {
	return (classA == x && classB == y) || (classA == y && classB == x)
}
