package pepnet

import (
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// PositiveMSE is a mean squared error cost that ignores
// components where the actual output is negative.
//
// It is meant for outputs where only a subset of the
// predicted components should be supervised and the model
// marks unsupervised components by driving them negative.
// A component of exactly zero counts as valid.
//
// The mean is taken over the full component count, so
// masked-out components still contribute zeros to the
// numerator and pull the mean toward zero.
// Existing models depend on that normalization, so it is
// kept even though it differs from MaskedMSE.
type PositiveMSE struct{}

// Cost computes the masked mean squared error for each
// sample in the batch.
//
// The mask is a constant with respect to gradients.
func (p PositiveMSE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	c := actual.Output().Creator()
	neg := anydiff.Scale(actual, c.MakeNumeric(-1))
	diff := anydiff.Add(desired, neg)
	sq := anydiff.Square(diff)

	dropped := actual.Output().Copy()
	anyvec.LessThan(dropped, c.MakeNumeric(0))
	keep := anydiff.Complement(anydiff.NewConst(dropped))

	masked := anydiff.Mul(sq, keep)
	numComps := masked.Output().Len() / n
	sum := anydiff.SumCols(&anydiff.Matrix{
		Data: masked,
		Rows: n,
		Cols: numComps,
	})
	return anydiff.Scale(sum, c.MakeNumeric(1/float64(numComps)))
}

// MaskedMSE is a mean squared error cost that treats NaN
// components of the desired output as unobserved.
//
// Unobserved components contribute nothing to the error,
// and each sample's error is divided by the number of
// observed components for that sample.
// A sample with no observed components produces NaN.
type MaskedMSE struct{}

// Cost computes the per-sample masked mean squared error.
func (m MaskedMSE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	info := nanMask(desired.Output(), n)
	diff := anydiff.Sub(actual, info.Clean)
	sq := anydiff.Square(diff)
	masked := anydiff.Mul(sq, info.Keep)
	sum := anydiff.SumCols(&anydiff.Matrix{
		Data: masked,
		Rows: n,
		Cols: masked.Output().Len() / n,
	})
	return anydiff.Mul(sum, info.InvCount)
}

// MaskedSigmoidCE combines a sigmoid output activation
// with cross-entropy loss, treating NaN components of the
// desired output as unobserved.
//
// Like MaskedMSE, each sample's cost is divided by the
// number of observed components for that sample.
type MaskedSigmoidCE struct{}

// Cost is mathematically equivalent to applying the
// sigmoid to each component of actual, then finding the
// masked, count-normalized cross-entropy loss.
func (m MaskedSigmoidCE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	c := actual.Output().Creator()
	info := nanMask(desired.Output(), n)
	minusOne := c.MakeNumeric(-1)
	costProducts := anydiff.Pool(actual, func(actual anydiff.Res) anydiff.Res {
		logRegular := anydiff.LogSigmoid(actual)
		logComplement := anydiff.LogSigmoid(anydiff.Scale(actual, minusOne))
		ce := anydiff.Add(
			anydiff.Mul(info.Clean, logRegular),
			anydiff.Mul(anydiff.Complement(info.Clean), logComplement),
		)
		return anydiff.Mul(ce, info.Keep)
	})
	sum := anydiff.SumCols(&anydiff.Matrix{
		Data: costProducts,
		Rows: n,
		Cols: costProducts.Output().Len() / n,
	})
	return anydiff.Mul(anydiff.Scale(sum, minusOne), info.InvCount)
}

// CostByName resolves a cost function by its
// configuration name.
//
// The names cover the framework's standard costs plus the
// masked variants defined by this package.
func CostByName(name string) (anynet.Cost, error) {
	switch name {
	case "mse":
		return anynet.MSE{}, nil
	case "binary_crossentropy":
		return anynet.SigmoidCE{Average: true}, nil
	case "categorical_crossentropy":
		return anynet.DotCost{}, nil
	case "hinge":
		return anynet.Hinge{}, nil
	case "categorical_hinge":
		return anynet.MultiHinge(0), nil
	case "positive_only_mse":
		return PositiveMSE{}, nil
	case "masked_mse":
		return MaskedMSE{}, nil
	case "masked_binary_crossentropy":
		return MaskedSigmoidCE{}, nil
	default:
		return nil, fmt.Errorf("unknown loss: %q", name)
	}
}

// maskInfo holds constant masking data derived from a
// batch of desired outputs containing NaN sentinels.
type maskInfo struct {
	// Keep is 1 for observed components and 0 for NaN.
	Keep anydiff.Res

	// Clean is the desired output with NaN components
	// replaced by zero.
	Clean anydiff.Res

	// InvCount holds one reciprocal observed-count per
	// sample.
	InvCount anydiff.Res
}

// nanMask scans a batch of desired outputs for NaN
// sentinels and produces the constant vectors the masked
// costs need.
func nanMask(desired anyvec.Vector, n int) *maskInfo {
	c := desired.Creator()
	data := vectorValues(desired)
	cols := len(data) / n

	keep := make([]float64, len(data))
	clean := make([]float64, len(data))
	invCount := make([]float64, n)
	for i := 0; i < n; i++ {
		var count int
		for j := 0; j < cols; j++ {
			v := data[i*cols+j]
			if math.IsNaN(v) {
				continue
			}
			keep[i*cols+j] = 1
			clean[i*cols+j] = v
			count++
		}
		invCount[i] = 1 / float64(count)
	}
	return &maskInfo{
		Keep:     constVector(c, keep),
		Clean:    constVector(c, clean),
		InvCount: constVector(c, invCount),
	}
}

func constVector(c anyvec.Creator, data []float64) anydiff.Res {
	return anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(data)))
}

func vectorValues(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return append([]float64{}, data...)
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}
