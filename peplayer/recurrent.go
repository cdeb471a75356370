package peplayer

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var f ForwardStage
	serializer.RegisterTypedDeserializer(f.SerializerType(), DeserializeForwardStage)
	var r Recurrent
	serializer.RegisterTypedDeserializer(r.SerializerType(), DeserializeRecurrent)
}

// A SeqLayer transforms one batched sequence into another.
//
// Both *anyrnn.Bidir and ForwardStage are SeqLayers.
type SeqLayer interface {
	Apply(seq anyseq.Seq) anyseq.Seq
}

// A ForwardStage runs a recurrent block over a sequence in
// the forward direction only.
type ForwardStage struct {
	Block anyrnn.Block
}

// DeserializeForwardStage deserializes a ForwardStage.
func DeserializeForwardStage(d []byte) (*ForwardStage, error) {
	var res ForwardStage
	if err := serializer.DeserializeAny(d, &res.Block); err != nil {
		return nil, essentials.AddCtx("deserialize ForwardStage", err)
	}
	return &res, nil
}

// Apply maps the block over the sequence.
func (f *ForwardStage) Apply(seq anyseq.Seq) anyseq.Seq {
	return anyrnn.Map(seq, f.Block)
}

// Parameters returns the block's parameters, if it has
// any.
func (f *ForwardStage) Parameters() []*anydiff.Var {
	if p, ok := f.Block.(anynet.Parameterizer); ok {
		return p.Parameters()
	}
	return nil
}

// SerializerType returns the unique ID used to serialize
// a ForwardStage with the serializer package.
func (f *ForwardStage) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.ForwardStage"
}

// Serialize serializes the ForwardStage.
func (f *ForwardStage) Serialize() ([]byte, error) {
	if s, ok := f.Block.(serializer.Serializer); ok {
		return serializer.SerializeAny(s)
	}
	return nil, fmt.Errorf("not a Serializer: %T", f.Block)
}

// Recurrent runs a stack of recurrent stages over
// sequences packed as timestep-major tensors.
//
// With ReturnSequences, the output retains one vector per
// timestep; otherwise only the final timestep's output is
// kept.
type Recurrent struct {
	InputSteps  int
	InputDepth  int
	OutputDepth int

	ReturnSequences bool

	Stages []SeqLayer
}

// NewRecurrent creates a randomized recurrent stack.
//
// The cell type is "lstm" or "gru".
// With bidirectional stages, each layer's output depth is
// twice its size.
func NewRecurrent(c anyvec.Creator, steps, depth int, layerSizes []int,
	cellType string, bidirectional, returnSequences bool) (*Recurrent, error) {
	if len(layerSizes) == 0 {
		return nil, fmt.Errorf("no recurrent layer sizes")
	}
	res := &Recurrent{
		InputSteps:      steps,
		InputDepth:      depth,
		ReturnSequences: returnSequences,
	}
	inSize := depth
	for _, size := range layerSizes {
		if size <= 0 {
			return nil, fmt.Errorf("invalid recurrent layer size: %d", size)
		}
		if bidirectional {
			forward, err := newRecurrentBlock(c, cellType, inSize, size)
			if err != nil {
				return nil, err
			}
			backward, err := newRecurrentBlock(c, cellType, inSize, size)
			if err != nil {
				return nil, err
			}
			res.Stages = append(res.Stages, &anyrnn.Bidir{
				Forward:  forward,
				Backward: backward,
				Mixer:    anynet.ConcatMixer{},
			})
			inSize = 2 * size
		} else {
			block, err := newRecurrentBlock(c, cellType, inSize, size)
			if err != nil {
				return nil, err
			}
			res.Stages = append(res.Stages, &ForwardStage{Block: block})
			inSize = size
		}
	}
	res.OutputDepth = inSize
	return res, nil
}

func newRecurrentBlock(c anyvec.Creator, cellType string, in, out int) (anyrnn.Block, error) {
	switch cellType {
	case "lstm":
		return anyrnn.NewLSTM(c, in, out), nil
	case "gru":
		return NewGRU(c, in, out), nil
	default:
		return nil, fmt.Errorf("unknown rnn type: %q", cellType)
	}
}

// DeserializeRecurrent deserializes a Recurrent.
func DeserializeRecurrent(d []byte) (*Recurrent, error) {
	var steps, depth, outDepth, retSeqs serializer.Int
	var stageData serializer.Bytes
	err := serializer.DeserializeAny(d, &steps, &depth, &outDepth, &retSeqs, &stageData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Recurrent", err)
	}
	stages, err := serializer.DeserializeSlice(stageData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Recurrent", err)
	}
	res := &Recurrent{
		InputSteps:      int(steps),
		InputDepth:      int(depth),
		OutputDepth:     int(outDepth),
		ReturnSequences: retSeqs != 0,
	}
	for _, stage := range stages {
		layer, ok := stage.(SeqLayer)
		if !ok {
			return nil, fmt.Errorf("deserialize Recurrent: not a SeqLayer: %T", stage)
		}
		res.Stages = append(res.Stages, layer)
	}
	return res, nil
}

// OutputSteps returns the number of output timesteps: the
// input step count with ReturnSequences, 1 otherwise.
func (r *Recurrent) OutputSteps() int {
	if r.ReturnSequences {
		return r.InputSteps
	}
	return 1
}

// Apply applies the recurrent stack to a batch.
func (r *Recurrent) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	if in.Output().Len() != batchSize*r.InputSteps*r.InputDepth {
		panic("incorrect input size")
	}
	seq := splitSeq(in, batchSize, r.InputSteps, r.InputDepth)
	for _, stage := range r.Stages {
		seq = stage.Apply(seq)
	}
	if r.ReturnSequences {
		return joinSeq(seq, batchSize)
	}
	return seqTail(seq, batchSize)
}

// Parameters returns the parameters of every stage.
func (r *Recurrent) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, stage := range r.Stages {
		if p, ok := stage.(anynet.Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Recurrent with the serializer package.
func (r *Recurrent) SerializerType() string {
	return "github.com/alexanderwhatley/pepnet/peplayer.Recurrent"
}

// Serialize serializes the Recurrent.
func (r *Recurrent) Serialize() ([]byte, error) {
	stages := make([]serializer.Serializer, len(r.Stages))
	for i, stage := range r.Stages {
		s, ok := stage.(serializer.Serializer)
		if !ok {
			return nil, fmt.Errorf("not a Serializer: %T", stage)
		}
		stages[i] = s
	}
	stageData, err := serializer.SerializeSlice(stages)
	if err != nil {
		return nil, err
	}
	var retSeqs serializer.Int
	if r.ReturnSequences {
		retSeqs = 1
	}
	return serializer.SerializeAny(
		serializer.Int(r.InputSteps),
		serializer.Int(r.InputDepth),
		serializer.Int(r.OutputDepth),
		retSeqs,
		serializer.Bytes(stageData),
	)
}

// splitSeq reinterprets a packed timestep-major batch as a
// sequence with one batch per timestep.
//
// All sequences are present at every timestep.
func splitSeq(in anydiff.Res, n, steps, depth int) anyseq.Seq {
	c := in.Output().Creator()
	res := &splitSeqRes{
		In:    in,
		C:     c,
		N:     n,
		Steps: steps,
		Depth: depth,
	}
	res.Mapper = timeMajorMapper(c, n, steps, depth)

	timeMajor := c.MakeVector(res.Mapper.OutSize())
	res.Mapper.Map(in.Output(), timeMajor)

	present := make([]bool, n)
	for i := range present {
		present[i] = true
	}
	for s := 0; s < steps; s++ {
		res.Out = append(res.Out, &anyseq.Batch{
			Packed:  timeMajor.Slice(s*n*depth, (s+1)*n*depth),
			Present: present,
		})
	}
	return res
}

// timeMajorMapper permutes a sample-major packed batch to
// a time-major layout.
func timeMajorMapper(c anyvec.Creator, n, steps, depth int) anyvec.Mapper {
	table := make([]int, 0, n*steps*depth)
	for s := 0; s < steps; s++ {
		for i := 0; i < n; i++ {
			for d := 0; d < depth; d++ {
				table = append(table, (i*steps+s)*depth+d)
			}
		}
	}
	return c.MakeMapper(n*steps*depth, table)
}

type splitSeqRes struct {
	In     anydiff.Res
	C      anyvec.Creator
	N      int
	Steps  int
	Depth  int
	Mapper anyvec.Mapper
	Out    []*anyseq.Batch
}

func (s *splitSeqRes) Creator() anyvec.Creator {
	return s.C
}

func (s *splitSeqRes) Output() []*anyseq.Batch {
	return s.Out
}

func (s *splitSeqRes) Vars() anydiff.VarSet {
	return s.In.Vars()
}

func (s *splitSeqRes) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	packed := make([]anyvec.Vector, len(u))
	for i, batch := range u {
		packed[i] = batch.Packed
	}
	timeMajor := s.C.Concat(packed...)
	down := s.C.MakeVector(s.Mapper.InSize())
	s.Mapper.MapTranspose(timeMajor, down)
	s.In.Propagate(down, g)
}

// joinSeq packs a sequence back into a timestep-major
// tensor per sample.
func joinSeq(seq anyseq.Seq, n int) anydiff.Res {
	batches := seq.Output()
	if len(batches) == 0 {
		panic("cannot join an empty sequence")
	}
	c := seq.Creator()
	steps := len(batches)
	depth := batches[0].Packed.Len() / n

	packed := make([]anyvec.Vector, steps)
	for i, batch := range batches {
		if batch.NumPresent() != n {
			panic("all sequences must be present")
		}
		packed[i] = batch.Packed
	}
	timeMajor := c.Concat(packed...)

	// The sample-major output selects from the time-major
	// concatenation.
	table := make([]int, 0, n*steps*depth)
	for i := 0; i < n; i++ {
		for s := 0; s < steps; s++ {
			for d := 0; d < depth; d++ {
				table = append(table, (s*n+i)*depth+d)
			}
		}
	}
	mapper := c.MakeMapper(n*steps*depth, table)
	out := c.MakeVector(mapper.OutSize())
	mapper.Map(timeMajor, out)

	return &joinSeqRes{
		Seq:    seq,
		N:      n,
		Depth:  depth,
		Mapper: mapper,
		OutVec: out,
	}
}

type joinSeqRes struct {
	Seq    anyseq.Seq
	N      int
	Depth  int
	Mapper anyvec.Mapper
	OutVec anyvec.Vector
}

func (j *joinSeqRes) Output() anyvec.Vector {
	return j.OutVec
}

func (j *joinSeqRes) Vars() anydiff.VarSet {
	return j.Seq.Vars()
}

func (j *joinSeqRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	c := u.Creator()
	timeMajor := c.MakeVector(j.Mapper.InSize())
	j.Mapper.MapTranspose(u, timeMajor)

	batches := seqUpstream(j.Seq, timeMajor, j.N, j.Depth)
	j.Seq.Propagate(batches, g)
}

// seqTail extracts the final timestep's outputs.
func seqTail(seq anyseq.Seq, n int) anydiff.Res {
	batches := seq.Output()
	if len(batches) == 0 {
		panic("cannot take the tail of an empty sequence")
	}
	last := batches[len(batches)-1]
	if last.NumPresent() != n {
		panic("all sequences must be present")
	}
	return &seqTailRes{
		Seq:    seq,
		N:      n,
		Depth:  last.Packed.Len() / n,
		OutVec: last.Packed.Copy(),
	}
}

type seqTailRes struct {
	Seq    anyseq.Seq
	N      int
	Depth  int
	OutVec anyvec.Vector
}

func (s *seqTailRes) Output() anyvec.Vector {
	return s.OutVec
}

func (s *seqTailRes) Vars() anydiff.VarSet {
	return s.Seq.Vars()
}

func (s *seqTailRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	c := u.Creator()
	batches := seqUpstream(s.Seq, nil, s.N, s.Depth)
	batches[len(batches)-1].Packed = u
	for i := 0; i < len(batches)-1; i++ {
		batches[i].Packed = c.MakeVector(s.N * s.Depth)
	}
	s.Seq.Propagate(batches, g)
}

// seqUpstream builds an upstream batch slice for a
// sequence, splitting timeMajor per timestep when it is
// non-nil and leaving Packed unset otherwise.
func seqUpstream(seq anyseq.Seq, timeMajor anyvec.Vector, n, depth int) []*anyseq.Batch {
	outs := seq.Output()
	res := make([]*anyseq.Batch, len(outs))
	for i, batch := range outs {
		res[i] = &anyseq.Batch{Present: batch.Present}
		if timeMajor != nil {
			res[i].Packed = timeMajor.Slice(i*n*depth, (i+1)*n*depth)
		}
	}
	return res
}
