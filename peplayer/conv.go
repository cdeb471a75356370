package peplayer

import (
	"fmt"
	"sort"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var a AlignedConv
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeAlignedConv)
}

// AlignedConv runs one-dimensional convolutions of several
// filter widths over a sequence and joins their outputs
// depthwise.
//
// Each width is zero-padded so that its output is aligned
// with the input: every input timestep produces exactly one
// output timestep.
// The output depth is the total filter count across all
// widths, ordered by ascending width.
type AlignedConv struct {
	InputSteps int
	InputDepth int

	// Widths is sorted ascending, parallel to Convs.
	Widths []int
	Convs  []*anyconv.Conv

	pads []*anyconv.Padding

	interleaveBatch int
	interleave      anyvec.Mapper
}

// NewAlignedConv creates a randomized AlignedConv from a
// mapping of filter widths to filter counts.
func NewAlignedConv(c anyvec.Creator, steps, depth int,
	filters map[int]int) (*AlignedConv, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("convolution input has no timesteps")
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("no convolution filters specified")
	}
	res := &AlignedConv{InputSteps: steps, InputDepth: depth}
	for width := range filters {
		res.Widths = append(res.Widths, width)
	}
	sort.Ints(res.Widths)
	for _, width := range res.Widths {
		count := filters[width]
		if width <= 0 || count <= 0 {
			return nil, fmt.Errorf("invalid filter configuration: %d filters of width %d",
				count, width)
		}
		conv := &anyconv.Conv{
			FilterCount:  count,
			FilterWidth:  width,
			FilterHeight: 1,
			StrideX:      1,
			StrideY:      1,
			InputWidth:   steps + width - 1,
			InputHeight:  1,
			InputDepth:   depth,
		}
		conv.InitRand(c)
		res.Convs = append(res.Convs, conv)
	}
	res.initPads()
	return res, nil
}

// DeserializeAlignedConv deserializes an AlignedConv.
func DeserializeAlignedConv(d []byte) (*AlignedConv, error) {
	var steps, depth serializer.Int
	var net anynet.Net
	if err := serializer.DeserializeAny(d, &steps, &depth, &net); err != nil {
		return nil, essentials.AddCtx("deserialize AlignedConv", err)
	}
	res := &AlignedConv{InputSteps: int(steps), InputDepth: int(depth)}
	for _, layer := range net {
		conv, ok := layer.(*anyconv.Conv)
		if !ok {
			return nil, fmt.Errorf("deserialize AlignedConv: not a Conv: %T", layer)
		}
		res.Widths = append(res.Widths, conv.FilterWidth)
		res.Convs = append(res.Convs, conv)
	}
	res.initPads()
	return res, nil
}

// OutputSteps returns the number of output timesteps,
// which equals the number of input timesteps.
func (a *AlignedConv) OutputSteps() int {
	return a.InputSteps
}

// OutputDepth returns the total filter count.
func (a *AlignedConv) OutputDepth() int {
	var res int
	for _, conv := range a.Convs {
		res += conv.FilterCount
	}
	return res
}

// Apply applies the convolutions to a batch of sequences.
//
// This is not thread-safe.
func (a *AlignedConv) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	if in.Output().Len() != batchSize*a.InputSteps*a.InputDepth {
		panic("incorrect input size")
	}
	if len(a.Convs) == 1 {
		return a.Convs[0].Apply(a.pads[0].Apply(in, batchSize), batchSize)
	}
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		branches := make([]anydiff.Res, len(a.Convs))
		for i, conv := range a.Convs {
			branches[i] = conv.Apply(a.pads[i].Apply(in, batchSize), batchSize)
		}
		joined := anydiff.Concat(branches...)
		mapper := a.interleaver(in.Output().Creator(), batchSize)
		out := joined.Output().Creator().MakeVector(mapper.OutSize())
		mapper.Map(joined.Output(), out)
		return &interleaveRes{
			In:     joined,
			Mapper: mapper,
			OutVec: out,
		}
	})
}

// Parameters returns the filters and biases of every
// width's convolution, ordered by ascending width.
func (a *AlignedConv) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, conv := range a.Convs {
		res = append(res, conv.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an AlignedConv with the serializer package.
func (a *AlignedConv) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.AlignedConv"
}

// Serialize serializes the AlignedConv.
func (a *AlignedConv) Serialize() ([]byte, error) {
	net := make(anynet.Net, len(a.Convs))
	for i, conv := range a.Convs {
		net[i] = conv
	}
	return serializer.SerializeAny(
		serializer.Int(a.InputSteps),
		serializer.Int(a.InputDepth),
		net,
	)
}

func (a *AlignedConv) initPads() {
	a.pads = make([]*anyconv.Padding, len(a.Widths))
	for i, width := range a.Widths {
		a.pads[i] = &anyconv.Padding{
			InputWidth:   a.InputSteps,
			InputHeight:  1,
			InputDepth:   a.InputDepth,
			PaddingLeft:  (width - 1) / 2,
			PaddingRight: width / 2,
		}
	}
}

// interleaver builds the permutation from branch-major
// concatenated outputs to a depth-interleaved layout.
func (a *AlignedConv) interleaver(c anyvec.Creator, batchSize int) anyvec.Mapper {
	if a.interleave != nil && a.interleaveBatch == batchSize {
		return a.interleave
	}
	steps := a.InputSteps
	totalDepth := a.OutputDepth()

	branchOffsets := make([]int, len(a.Convs))
	var offset int
	for i, conv := range a.Convs {
		branchOffsets[i] = offset
		offset += batchSize * steps * conv.FilterCount
	}

	table := make([]int, 0, batchSize*steps*totalDepth)
	for i := 0; i < batchSize; i++ {
		for s := 0; s < steps; s++ {
			for b, conv := range a.Convs {
				start := branchOffsets[b] + (i*steps+s)*conv.FilterCount
				for f := 0; f < conv.FilterCount; f++ {
					table = append(table, start+f)
				}
			}
		}
	}
	a.interleave = c.MakeMapper(offset, table)
	a.interleaveBatch = batchSize
	return a.interleave
}

type interleaveRes struct {
	In     anydiff.Res
	Mapper anyvec.Mapper
	OutVec anyvec.Vector
}

func (i *interleaveRes) Output() anyvec.Vector {
	return i.OutVec
}

func (i *interleaveRes) Vars() anydiff.VarSet {
	return i.In.Vars()
}

func (i *interleaveRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	down := u.Creator().MakeVector(i.Mapper.InSize())
	i.Mapper.MapTranspose(u, down)
	i.In.Propagate(down, g)
}
