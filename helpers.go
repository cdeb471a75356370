package pepnet

import (
	"fmt"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anynet/anymisc"
	"github.com/unixpickle/anyvec"
)

// activationLayer resolves an activation name to a layer.
// The "linear" activation (and the empty string) resolve
// to nil, meaning no layer should be applied.
func activationLayer(name string) (anynet.Layer, error) {
	switch name {
	case "", "linear":
		return nil, nil
	case "relu":
		return anynet.ReLU, nil
	case "tanh":
		return anynet.Tanh, nil
	case "sigmoid":
		return anynet.Sigmoid, nil
	case "sin":
		return anynet.Sin, nil
	case "log_softmax":
		return anynet.LogSoftmax, nil
	case "selu":
		return &anymisc.SELU{}, nil
	default:
		return nil, fmt.Errorf("unknown activation: %q", name)
	}
}

// denseStack builds a stack of fully-connected hidden
// layers, each followed by the activation and (optionally)
// batch normalization and dropout.
//
// It returns the layers along with the output size of the
// final layer, which is inCount when sizes is empty.
func denseStack(c anyvec.Creator, inCount int, sizes []int, activation string,
	dropout float64, batchNorm bool) (anynet.Net, int, error) {
	act, err := activationLayer(activation)
	if err != nil {
		return nil, 0, err
	}
	var net anynet.Net
	size := inCount
	for _, hidden := range sizes {
		if hidden <= 0 {
			return nil, 0, fmt.Errorf("invalid dense layer size: %d", hidden)
		}
		net = append(net, anynet.NewFC(c, size, hidden))
		if act != nil {
			net = append(net, act)
		}
		if batchNorm {
			net = append(net, anyconv.NewBatchNorm(c, hidden))
		}
		if dropout > 0 {
			net = append(net, &anynet.Dropout{Enabled: true, KeepProb: 1 - dropout})
		}
		size = hidden
	}
	return net, size, nil
}
