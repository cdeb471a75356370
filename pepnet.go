// Package pepnet builds neural networks for peptide and
// other biological-sequence data on top of the anynet
// framework.
//
// The package is organized around declarative descriptors.
// A SequenceInput describes how raw sequences are encoded
// and transformed into a feature representation, and an
// Output describes how a representation is projected to a
// named prediction and which cost supervises it.
// Descriptors are plain configuration: building one
// produces a fresh anynet network with its own parameters,
// so building twice yields two independent networks.
package pepnet

import (
	"github.com/alexanderwhatley/pepnet/peplayer"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
)

// A Placeholder describes the input tensor a fragment
// expects: a batch of sequences, each with Steps timesteps
// of Depth components.
//
// For learned-embedding inputs, Indexed is true and each
// timestep is a single symbol index rather than a dense
// vector.
type Placeholder struct {
	Name    string
	Steps   int
	Depth   int
	Indexed bool
}

// MakeVectorSequenceInput creates a placeholder for dense
// per-timestep feature vectors.
func MakeVectorSequenceInput(name string, length, numDims int) *Placeholder {
	return &Placeholder{Name: name, Steps: length, Depth: numDims}
}

// MakeIndexSequenceInput creates a placeholder for integer
// symbol indices.
func MakeIndexSequenceInput(name string, length int) *Placeholder {
	return &Placeholder{Name: name, Steps: length, Depth: 1, Indexed: true}
}

// Size returns the number of input components per sample.
func (p *Placeholder) Size() int {
	return p.Steps * p.Depth
}

// A Fragment is a built piece of a model: an input
// placeholder together with the network that transforms
// the input into a feature representation.
type Fragment struct {
	Placeholder *Placeholder
	Net         anynet.Net

	// OutSteps and OutDepth describe the shape of the
	// representation per sample.
	// OutSteps is 1 when the time axis has been reduced or
	// flattened away.
	OutSteps int
	OutDepth int

	convLayers []*peplayer.AlignedConv
}

// OutSize returns the number of output components per
// sample.
func (f *Fragment) OutSize() int {
	return f.OutSteps * f.OutDepth
}

// Apply applies the fragment's network to a batch of
// encoded inputs.
func (f *Fragment) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	return f.Net.Apply(in, batchSize)
}

// Parameters returns the learnable variables of the
// fragment's network.
func (f *Fragment) Parameters() []*anydiff.Var {
	return f.Net.Parameters()
}

// ConvLayers returns the convolution layers of the
// fragment, in the order they were built.
// Dependent sequence inputs use these to share convolution
// parameters.
func (f *Fragment) ConvLayers() []*peplayer.AlignedConv {
	return f.convLayers
}
