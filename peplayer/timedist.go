package peplayer

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var t TimeDistributed
	serializer.RegisterTypedDeserializer(t.SerializerType(), DeserializeTimeDistributed)
}

// TimeDistributed applies a layer to every timestep of a
// sequence independently, treating each timestep as its
// own batch element.
type TimeDistributed struct {
	Steps int
	Layer anynet.Layer
}

// DeserializeTimeDistributed deserializes a
// TimeDistributed.
func DeserializeTimeDistributed(d []byte) (*TimeDistributed, error) {
	var steps serializer.Int
	var res TimeDistributed
	if err := serializer.DeserializeAny(d, &steps, &res.Layer); err != nil {
		return nil, essentials.AddCtx("deserialize TimeDistributed", err)
	}
	res.Steps = int(steps)
	return &res, nil
}

// Apply applies the wrapped layer per timestep.
func (t *TimeDistributed) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	return t.Layer.Apply(in, batchSize*t.Steps)
}

// Parameters returns the wrapped layer's parameters, if it
// has any.
func (t *TimeDistributed) Parameters() []*anydiff.Var {
	if p, ok := t.Layer.(anynet.Parameterizer); ok {
		return p.Parameters()
	}
	return nil
}

// SerializerType returns the unique ID used to serialize
// a TimeDistributed with the serializer package.
func (t *TimeDistributed) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.TimeDistributed"
}

// Serialize serializes the TimeDistributed.
func (t *TimeDistributed) Serialize() ([]byte, error) {
	if s, ok := t.Layer.(serializer.Serializer); ok {
		return serializer.SerializeAny(serializer.Int(t.Steps), s)
	}
	return nil, fmt.Errorf("not a Serializer: %T", t.Layer)
}
