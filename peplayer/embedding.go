// Package peplayer provides the sequence-oriented layers
// used to assemble peptide models: symbol embeddings,
// width-aligned convolutions, local and global pooling,
// highway networks, and recurrent stacks.
//
// All layers treat each sample as a packed timestep-major,
// depth-minor tensor, following the anyconv convention.
package peplayer

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

func init() {
	var e Embedding
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEmbedding)
}

// An Embedding maps symbol indices to learned vectors.
//
// Inputs hold one numeric symbol index per timestep.
// Indices are not differentiable, so no gradient flows to
// the layer's input.
type Embedding struct {
	NumSymbols int
	OutputDim  int

	// MaskZero zeroes the output vectors of timesteps
	// whose symbol index is 0, so that a padding token at
	// index 0 contributes nothing downstream.
	MaskZero bool

	// Weights is a NumSymbols-by-OutputDim row-major
	// table.
	Weights *anydiff.Var
}

// NewEmbedding creates a randomized Embedding.
func NewEmbedding(c anyvec.Creator, numSymbols, outputDim int) *Embedding {
	weights := c.MakeVector(numSymbols * outputDim)
	anyvec.Rand(weights, anyvec.Normal, nil)
	weights.Scale(c.MakeNumeric(1 / math.Sqrt(float64(outputDim))))
	return &Embedding{
		NumSymbols: numSymbols,
		OutputDim:  outputDim,
		Weights:    anydiff.NewVar(weights),
	}
}

// DeserializeEmbedding deserializes an Embedding.
func DeserializeEmbedding(d []byte) (*Embedding, error) {
	var numSymbols, maskZero serializer.Int
	var weights *anyvecsave.S
	if err := serializer.DeserializeAny(d, &numSymbols, &maskZero, &weights); err != nil {
		return nil, err
	}
	if numSymbols == 0 || weights.Vector.Len()%int(numSymbols) != 0 {
		return nil, errors.New("incorrect embedding table size")
	}
	return &Embedding{
		NumSymbols: int(numSymbols),
		OutputDim:  weights.Vector.Len() / int(numSymbols),
		MaskZero:   maskZero != 0,
		Weights:    anydiff.NewVar(weights.Vector),
	}, nil
}

// Apply looks up the embedding vector for every timestep
// of every sample in the batch.
func (e *Embedding) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	c := in.Output().Creator()
	indices := intValues(in.Output())
	if len(indices)%batchSize != 0 {
		panic("incorrect input size")
	}

	table := make([]int, 0, len(indices)*e.OutputDim)
	var mask []float64
	for _, idx := range indices {
		if idx < 0 || idx >= e.NumSymbols {
			panic(fmt.Sprintf("symbol index out of range: %d", idx))
		}
		for j := 0; j < e.OutputDim; j++ {
			table = append(table, idx*e.OutputDim+j)
		}
		if e.MaskZero {
			keep := 1.0
			if idx == 0 {
				keep = 0
			}
			for j := 0; j < e.OutputDim; j++ {
				mask = append(mask, keep)
			}
		}
	}
	mapper := c.MakeMapper(e.NumSymbols*e.OutputDim, table)
	out := c.MakeVector(mapper.OutSize())
	mapper.Map(e.Weights.Vector, out)

	res := &embeddingRes{
		Layer:  e,
		Mapper: mapper,
		OutVec: out,
		V:      anydiff.VarSet{},
	}
	res.V.Add(e.Weights)
	if e.MaskZero {
		res.Mask = c.MakeVectorData(c.MakeNumericList(mask))
		res.OutVec.Mul(res.Mask)
	}
	return res
}

// Parameters returns the embedding table.
func (e *Embedding) Parameters() []*anydiff.Var {
	return []*anydiff.Var{e.Weights}
}

// SerializerType returns the unique ID used to serialize
// an Embedding with the serializer package.
func (e *Embedding) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.Embedding"
}

// Serialize serializes the Embedding.
func (e *Embedding) Serialize() ([]byte, error) {
	var maskZero serializer.Int
	if e.MaskZero {
		maskZero = 1
	}
	return serializer.SerializeAny(
		serializer.Int(e.NumSymbols),
		maskZero,
		&anyvecsave.S{Vector: e.Weights.Vector},
	)
}

type embeddingRes struct {
	Layer  *Embedding
	Mapper anyvec.Mapper
	Mask   anyvec.Vector
	OutVec anyvec.Vector
	V      anydiff.VarSet
}

func (e *embeddingRes) Output() anyvec.Vector {
	return e.OutVec
}

func (e *embeddingRes) Vars() anydiff.VarSet {
	return e.V
}

func (e *embeddingRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	if wGrad, ok := g[e.Layer.Weights]; ok {
		if e.Mask != nil {
			u.Mul(e.Mask)
		}
		accum := u.Creator().MakeVector(e.Mapper.InSize())
		e.Mapper.MapTranspose(u, accum)
		wGrad.Add(accum)
	}
}

// intValues reads a vector of whole numbers back to the
// host.
func intValues(v anyvec.Vector) []int {
	var floats []float64
	switch data := v.Data().(type) {
	case []float64:
		floats = data
	case []float32:
		floats = make([]float64, len(data))
		for i, x := range data {
			floats[i] = float64(x)
		}
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
	res := make([]int, len(floats))
	for i, x := range floats {
		res[i] = int(x)
		if float64(res[i]) != x {
			panic(fmt.Sprintf("non-integer symbol index: %v", x))
		}
	}
	return res
}
