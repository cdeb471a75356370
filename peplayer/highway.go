package peplayer

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Gates start out biased toward passing the input through.
const highwayGateBias = -1

func init() {
	var h Highway
	serializer.RegisterTypedDeserializer(h.SerializerType(), DeserializeHighway)
}

// Highway is a highway network layer: a learned gate
// blends a non-linear transformation of the input with the
// input itself.
//
//	out := g*a(T(in)) + (1-g)*in
//
// Where g is the sigmoid-activated gate projection, T is
// the transform projection, and a is the activation.
type Highway struct {
	InCount int

	Transform  *anynet.FC
	Gate       *anynet.FC
	Activation anynet.Layer
}

// NewHighway creates a randomized Highway layer.
//
// A nil activation means the transformation is linear.
func NewHighway(c anyvec.Creator, size int, activation anynet.Layer) *Highway {
	if activation == nil {
		activation = anynet.Net{}
	}
	gate := anynet.NewFC(c, size, size)
	gate.Biases.Vector.AddScalar(c.MakeNumeric(highwayGateBias))
	return &Highway{
		InCount:    size,
		Transform:  anynet.NewFC(c, size, size),
		Gate:       gate,
		Activation: activation,
	}
}

// DeserializeHighway deserializes a Highway.
func DeserializeHighway(d []byte) (*Highway, error) {
	var res Highway
	err := serializer.DeserializeAny(d, &res.Transform, &res.Gate, &res.Activation)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Highway", err)
	}
	res.InCount = res.Transform.InCount
	return &res, nil
}

// Apply applies the layer to a batch.
func (h *Highway) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	if in.Output().Len() != batchSize*h.InCount {
		panic("incorrect input size")
	}
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		gate := anynet.Sigmoid.Apply(h.Gate.Apply(in, batchSize), batchSize)
		trans := h.Activation.Apply(h.Transform.Apply(in, batchSize), batchSize)
		return anydiff.Pool(gate, func(gate anydiff.Res) anydiff.Res {
			return anydiff.Add(
				anydiff.Mul(gate, trans),
				anydiff.Mul(anydiff.Complement(gate), in),
			)
		})
	})
}

// Parameters returns the parameters of both projections,
// plus those of the activation if it has any.
func (h *Highway) Parameters() []*anydiff.Var {
	return anynet.AllParameters(h.Transform, h.Gate, h.Activation)
}

// SerializerType returns the unique ID used to serialize
// a Highway with the serializer package.
func (h *Highway) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.Highway"
}

// Serialize serializes the Highway.
func (h *Highway) Serialize() ([]byte, error) {
	return serializer.SerializeAny(h.Transform, h.Gate, h.Activation)
}
