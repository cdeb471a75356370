package pepnet

import (
	"encoding/json"
	"fmt"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// An OutputConfig describes a numeric model output.
type OutputConfig struct {
	// Name identifies the output within a model.
	Name string `json:"name"`

	// Dim is the number of predicted components.
	Dim int `json:"dim"`

	// Activation is applied to the final projection.
	Activation string `json:"activation"`

	// Loss names the cost function supervising the output.
	Loss string `json:"loss"`

	// DenseLayerSizes configures hidden layers applied
	// before the final projection.
	DenseLayerSizes []int   `json:"dense_layer_sizes"`
	DenseActivation string  `json:"dense_activation"`
	DenseDropout    float64 `json:"dense_dropout"`
	DenseBatchNorm  bool    `json:"dense_batch_normalization"`

	// MaskNegative substitutes a loss that ignores
	// components the model drives negative.
	MaskNegative bool `json:"mask_negative"`
}

// NewOutputConfig creates a config with default settings:
// a single linear component supervised by mean squared
// error.
func NewOutputConfig() *OutputConfig {
	return &OutputConfig{
		Dim:             1,
		Activation:      "linear",
		Loss:            "mse",
		DenseActivation: "relu",
	}
}

// An Output turns a feature representation into a named
// numeric prediction and selects the cost that supervises
// it.
type Output struct {
	// Transform, if non-nil, is applied to raw target
	// values before they are used for supervision.
	Transform func(x []float64) []float64

	// InverseTransform, if non-nil, undoes Transform on
	// raw model outputs during decoding.
	InverseTransform func(x []float64) []float64

	config *OutputConfig
}

// NewOutput validates a config and creates an Output.
func NewOutput(conf *OutputConfig) (*Output, error) {
	if conf.Dim <= 0 {
		return nil, fmt.Errorf("invalid output dimension: %d", conf.Dim)
	}
	if _, err := activationLayer(conf.Activation); err != nil {
		return nil, essentials.AddCtx("create output", err)
	}
	c := *conf
	c.DenseLayerSizes = append([]int{}, conf.DenseLayerSizes...)
	return &Output{config: &c}, nil
}

// OutputFromMap reconstructs an Output from a plain
// configuration mapping, such as one produced by decoding
// JSON.
//
// Missing keys take their default values.
func OutputFromMap(m map[string]interface{}) (*Output, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, essentials.AddCtx("read output config", err)
	}
	conf := NewOutputConfig()
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, essentials.AddCtx("read output config", err)
	}
	return NewOutput(conf)
}

// Name returns the output's name.
func (o *Output) Name() string {
	return o.config.Name
}

// Dim returns the number of predicted components.
func (o *Output) Dim() int {
	return o.config.Dim
}

// Config returns a copy of the output's configuration.
func (o *Output) Config() *OutputConfig {
	c := *o.config
	c.DenseLayerSizes = append([]int{}, o.config.DenseLayerSizes...)
	return &c
}

// Build creates the network mapping an inCount-component
// representation to the output's prediction.
//
// Each call produces a network with fresh parameters.
func (o *Output) Build(c anyvec.Creator, inCount int) (anynet.Net, error) {
	conf := o.config
	net, hidden, err := denseStack(c, inCount, conf.DenseLayerSizes,
		conf.DenseActivation, conf.DenseDropout, conf.DenseBatchNorm)
	if err != nil {
		return nil, essentials.AddCtx("build output "+conf.Name, err)
	}
	net = append(net, anynet.NewFC(c, hidden, conf.Dim))
	act, err := activationLayer(conf.Activation)
	if err != nil {
		return nil, essentials.AddCtx("build output "+conf.Name, err)
	}
	if act != nil {
		net = append(net, act)
	}
	return net, nil
}

// Decode maps raw model outputs back to the caller's value
// space by applying the inverse transform, if any.
func (o *Output) Decode(x []float64) []float64 {
	if o.InverseTransform != nil {
		return o.InverseTransform(x)
	}
	return x
}

// EncodeTargets maps raw target values into the space the
// model is trained in by applying the transform, if any.
func (o *Output) EncodeTargets(x []float64) []float64 {
	if o.Transform != nil {
		return o.Transform(x)
	}
	return x
}

// Cost resolves the cost function supervising the output.
//
// With MaskNegative set, only losses with a masked
// counterpart are allowed.
func (o *Output) Cost() (anynet.Cost, error) {
	if o.config.MaskNegative {
		if o.config.Loss == "mse" {
			return PositiveMSE{}, nil
		}
		return nil, fmt.Errorf("no masked loss available for %q", o.config.Loss)
	}
	return CostByName(o.config.Loss)
}
