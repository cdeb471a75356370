package peplayer

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

// Update gates start out biased toward keeping the old
// state.
const gruUpdateBias = 1

func init() {
	var g GRU
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGRU)
}

// GRU is a gated recurrent unit block.
//
// The state update is given as
//
//	z := sigmoid(Uz*state + Wz*input + bz)
//	r := sigmoid(Ur*state + Wr*input + br)
//	c := tanh(Uc*(r*state) + Wc*input + bc)
//	out := z*state + (1-z)*c
type GRU struct {
	InCount  int
	OutCount int

	UpdateStateWeights *anydiff.Var
	UpdateInputWeights *anydiff.Var
	UpdateBiases       *anydiff.Var

	ResetStateWeights *anydiff.Var
	ResetInputWeights *anydiff.Var
	ResetBiases       *anydiff.Var

	CandidateStateWeights *anydiff.Var
	CandidateInputWeights *anydiff.Var
	CandidateBiases       *anydiff.Var

	StartState *anydiff.Var
}

// NewGRU creates a new, randomized GRU block.
func NewGRU(c anyvec.Creator, in, out int) *GRU {
	res := NewGRUZero(c, in, out)
	for _, stateWeights := range []*anydiff.Var{res.UpdateStateWeights,
		res.ResetStateWeights, res.CandidateStateWeights} {
		anyvec.Rand(stateWeights.Vector, anyvec.Normal, nil)
		stateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(out))))
	}
	for _, inWeights := range []*anydiff.Var{res.UpdateInputWeights,
		res.ResetInputWeights, res.CandidateInputWeights} {
		anyvec.Rand(inWeights.Vector, anyvec.Normal, nil)
		inWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	}
	res.UpdateBiases.Vector.AddScalar(c.MakeNumeric(gruUpdateBias))
	return res
}

// NewGRUZero creates a new, zero'd out GRU block.
func NewGRUZero(c anyvec.Creator, in, out int) *GRU {
	return &GRU{
		InCount:  in,
		OutCount: out,

		UpdateStateWeights: anydiff.NewVar(c.MakeVector(out * out)),
		UpdateInputWeights: anydiff.NewVar(c.MakeVector(in * out)),
		UpdateBiases:       anydiff.NewVar(c.MakeVector(out)),

		ResetStateWeights: anydiff.NewVar(c.MakeVector(out * out)),
		ResetInputWeights: anydiff.NewVar(c.MakeVector(in * out)),
		ResetBiases:       anydiff.NewVar(c.MakeVector(out)),

		CandidateStateWeights: anydiff.NewVar(c.MakeVector(out * out)),
		CandidateInputWeights: anydiff.NewVar(c.MakeVector(in * out)),
		CandidateBiases:       anydiff.NewVar(c.MakeVector(out)),

		StartState: anydiff.NewVar(c.MakeVector(out)),
	}
}

// DeserializeGRU deserializes a GRU block.
func DeserializeGRU(d []byte) (*GRU, error) {
	vecs := make([]*anyvecsave.S, 10)
	dests := make([]interface{}, 10)
	for i := range vecs {
		dests[i] = &vecs[i]
	}
	if err := serializer.DeserializeAny(d, dests...); err != nil {
		return nil, err
	}

	out := vecs[2].Vector.Len()
	in := vecs[1].Vector.Len() / out
	for _, i := range []int{0, 3, 6} {
		if vecs[i].Vector.Len() != out*out {
			return nil, errors.New("incorrect GRU state matrix size")
		}
		if vecs[i+1].Vector.Len() != in*out {
			return nil, errors.New("incorrect GRU input matrix size")
		}
		if vecs[i+2].Vector.Len() != out {
			return nil, errors.New("incorrect GRU bias size")
		}
	}
	if vecs[9].Vector.Len() != out {
		return nil, errors.New("incorrect GRU start state size")
	}

	return &GRU{
		InCount:  in,
		OutCount: out,

		UpdateStateWeights: anydiff.NewVar(vecs[0].Vector),
		UpdateInputWeights: anydiff.NewVar(vecs[1].Vector),
		UpdateBiases:       anydiff.NewVar(vecs[2].Vector),

		ResetStateWeights: anydiff.NewVar(vecs[3].Vector),
		ResetInputWeights: anydiff.NewVar(vecs[4].Vector),
		ResetBiases:       anydiff.NewVar(vecs[5].Vector),

		CandidateStateWeights: anydiff.NewVar(vecs[6].Vector),
		CandidateInputWeights: anydiff.NewVar(vecs[7].Vector),
		CandidateBiases:       anydiff.NewVar(vecs[8].Vector),

		StartState: anydiff.NewVar(vecs[9].Vector),
	}, nil
}

// Start produces the start state.
func (g *GRU) Start(n int) anyrnn.State {
	return anyrnn.NewVecState(g.StartState.Vector, n)
}

// PropagateStart propagates through the start state.
func (g *GRU) PropagateStart(s anyrnn.StateGrad, grad anydiff.Grad) {
	s.(*anyrnn.VecState).PropagateStart(g.StartState, grad)
}

// Step performs one timestep.
func (g *GRU) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	res := &gruRes{
		InPool:    anydiff.NewVar(in),
		StatePool: anydiff.NewVar(s.(*anyrnn.VecState).Vector),
		V:         anydiff.VarSet{},
	}
	res.V.Add(g.StartState)

	update := anydiff.Sigmoid(g.gate(g.UpdateStateWeights, g.UpdateInputWeights,
		g.UpdateBiases, res.StatePool, res.InPool))
	reset := anydiff.Sigmoid(g.gate(g.ResetStateWeights, g.ResetInputWeights,
		g.ResetBiases, res.StatePool, res.InPool))
	candidate := anydiff.Tanh(g.gate(g.CandidateStateWeights,
		g.CandidateInputWeights, g.CandidateBiases,
		anydiff.Mul(reset, res.StatePool), res.InPool))

	res.Out = anydiff.Pool(update, func(update anydiff.Res) anydiff.Res {
		return anydiff.Add(
			anydiff.Mul(update, res.StatePool),
			anydiff.Mul(anydiff.Complement(update), candidate),
		)
	})
	res.OutState = &anyrnn.VecState{
		Vector:     res.Out.Output(),
		PresentMap: s.Present(),
	}
	res.V = anydiff.MergeVarSets(res.V, res.Out.Vars())

	return res
}

// gate computes state*stateWeights + input*inputWeights +
// biases for a batch.
func (g *GRU) gate(stateWeights, inputWeights, biases *anydiff.Var,
	state, in anydiff.Res) anydiff.Res {
	wState := batchMatMul(g.OutCount, g.OutCount, stateWeights, state)
	wInput := batchMatMul(g.InCount, g.OutCount, inputWeights, in)
	return anydiff.AddRepeated(anydiff.Add(wState, wInput), biases)
}

// Parameters returns all of the block's parameters.
func (g *GRU) Parameters() []*anydiff.Var {
	return []*anydiff.Var{
		g.UpdateStateWeights, g.UpdateInputWeights, g.UpdateBiases,
		g.ResetStateWeights, g.ResetInputWeights, g.ResetBiases,
		g.CandidateStateWeights, g.CandidateInputWeights, g.CandidateBiases,
		g.StartState,
	}
}

// SerializerType returns the unique ID used to serialize
// a GRU with the serializer package.
func (g *GRU) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.GRU"
}

// Serialize serializes the GRU.
func (g *GRU) Serialize() ([]byte, error) {
	params := g.Parameters()
	objs := make([]interface{}, len(params))
	for i, p := range params {
		objs[i] = &anyvecsave.S{Vector: p.Vector}
	}
	return serializer.SerializeAny(objs...)
}

type gruRes struct {
	InPool    *anydiff.Var
	StatePool *anydiff.Var
	OutState  anyrnn.State
	Out       anydiff.Res
	V         anydiff.VarSet
}

func (g *gruRes) State() anyrnn.State {
	return g.OutState
}

func (g *gruRes) Output() anyvec.Vector {
	return g.Out.Output()
}

func (g *gruRes) Vars() anydiff.VarSet {
	return g.V
}

func (g *gruRes) Propagate(u anyvec.Vector, s anyrnn.StateGrad,
	grad anydiff.Grad) (anyvec.Vector, anyrnn.StateGrad) {
	down := g.InPool.Vector.Creator().MakeVector(g.InPool.Vector.Len())
	downState := g.StatePool.Vector.Creator().MakeVector(g.StatePool.Vector.Len())
	grad[g.InPool] = down
	grad[g.StatePool] = downState
	if s != nil {
		u.Add(s.(*anyrnn.VecState).Vector)
	}
	g.Out.Propagate(u, grad)
	delete(grad, g.InPool)
	delete(grad, g.StatePool)
	return down, &anyrnn.VecState{
		Vector:     downState,
		PresentMap: g.OutState.Present(),
	}
}

// batchMatMul multiplies a batch of row vectors by the
// transpose of a weight matrix.
func batchMatMul(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
