package peplayer

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var l LocalMaxPool
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLocalMaxPool)
	var g GlobalMaxAndMeanPool
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGlobalMaxAndMeanPool)
}

// LocalMaxPool takes the maximum over windows of timesteps
// while leaving the depth axis untouched.
//
// Windows that extend past the end of the sequence are
// dropped.
type LocalMaxPool struct {
	Size   int
	Stride int

	InputSteps int
	InputDepth int

	pool *anyconv.MaxPool
}

// NewLocalMaxPool creates a LocalMaxPool.
func NewLocalMaxPool(size, stride, steps, depth int) *LocalMaxPool {
	res := &LocalMaxPool{
		Size:       size,
		Stride:     stride,
		InputSteps: steps,
		InputDepth: depth,
	}
	res.initPool()
	return res
}

// DeserializeLocalMaxPool deserializes a LocalMaxPool.
func DeserializeLocalMaxPool(d []byte) (*LocalMaxPool, error) {
	var size, stride, steps, depth serializer.Int
	if err := serializer.DeserializeAny(d, &size, &stride, &steps, &depth); err != nil {
		return nil, essentials.AddCtx("deserialize LocalMaxPool", err)
	}
	return NewLocalMaxPool(int(size), int(stride), int(steps), int(depth)), nil
}

// OutputSteps returns the number of pooled timesteps.
func (l *LocalMaxPool) OutputSteps() int {
	if l.InputSteps < l.Size {
		return 0
	}
	return 1 + (l.InputSteps-l.Size)/l.Stride
}

// OutputDepth returns the depth, which pooling preserves.
func (l *LocalMaxPool) OutputDepth() int {
	return l.InputDepth
}

// Apply applies the pooling layer.
//
// This is not thread-safe.
func (l *LocalMaxPool) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	return l.pool.Apply(in, batchSize)
}

// SerializerType returns the unique ID used to serialize
// a LocalMaxPool with the serializer package.
func (l *LocalMaxPool) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.LocalMaxPool"
}

// Serialize serializes the LocalMaxPool.
func (l *LocalMaxPool) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(l.Size),
		serializer.Int(l.Stride),
		serializer.Int(l.InputSteps),
		serializer.Int(l.InputDepth),
	)
}

func (l *LocalMaxPool) initPool() {
	l.pool = &anyconv.MaxPool{
		SpanX:       l.Size,
		SpanY:       1,
		StrideX:     l.Stride,
		StrideY:     1,
		InputWidth:  l.InputSteps,
		InputHeight: 1,
		InputDepth:  l.InputDepth,
	}
}

// GlobalMaxAndMeanPool reduces the time axis entirely,
// producing the per-depth maximum followed by the
// per-depth mean for each sample.
//
// The output depth is twice the input depth.
type GlobalMaxAndMeanPool struct {
	InputSteps int
	InputDepth int

	max  *anyconv.MaxPool
	mean *anyconv.MeanPool
}

// NewGlobalMaxAndMeanPool creates a GlobalMaxAndMeanPool.
func NewGlobalMaxAndMeanPool(steps, depth int) *GlobalMaxAndMeanPool {
	res := &GlobalMaxAndMeanPool{InputSteps: steps, InputDepth: depth}
	res.initPools()
	return res
}

// DeserializeGlobalMaxAndMeanPool deserializes a
// GlobalMaxAndMeanPool.
func DeserializeGlobalMaxAndMeanPool(d []byte) (*GlobalMaxAndMeanPool, error) {
	var steps, depth serializer.Int
	if err := serializer.DeserializeAny(d, &steps, &depth); err != nil {
		return nil, essentials.AddCtx("deserialize GlobalMaxAndMeanPool", err)
	}
	return NewGlobalMaxAndMeanPool(int(steps), int(depth)), nil
}

// OutputDepth returns twice the input depth.
func (g *GlobalMaxAndMeanPool) OutputDepth() int {
	return 2 * g.InputDepth
}

// Apply applies the pooling layer.
//
// This is not thread-safe.
func (g *GlobalMaxAndMeanPool) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		maxOut := g.max.Apply(in, batchSize)
		meanOut := g.mean.Apply(in, batchSize)
		return anynet.ConcatMixer{}.Mix(maxOut, meanOut, batchSize)
	})
}

// SerializerType returns the unique ID used to serialize
// a GlobalMaxAndMeanPool with the serializer package.
func (g *GlobalMaxAndMeanPool) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.GlobalMaxAndMeanPool"
}

// Serialize serializes the GlobalMaxAndMeanPool.
func (g *GlobalMaxAndMeanPool) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(g.InputSteps),
		serializer.Int(g.InputDepth),
	)
}

func (g *GlobalMaxAndMeanPool) initPools() {
	g.max = &anyconv.MaxPool{
		SpanX:       g.InputSteps,
		SpanY:       1,
		StrideX:     g.InputSteps,
		StrideY:     1,
		InputWidth:  g.InputSteps,
		InputHeight: 1,
		InputDepth:  g.InputDepth,
	}
	g.mean = &anyconv.MeanPool{
		SpanX:       g.InputSteps,
		SpanY:       1,
		StrideX:     g.InputSteps,
		StrideY:     1,
		InputWidth:  g.InputSteps,
		InputHeight: 1,
		InputDepth:  g.InputDepth,
	}
}
