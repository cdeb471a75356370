package pepnet

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alexanderwhatley/pepnet/pepenc"
	"github.com/alexanderwhatley/pepnet/peplayer"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A ConvLayer configures one convolution layer of a
// sequence input.
//
// Filters maps filter widths to filter counts.
// The remaining fields, when non-nil, override the
// stack-level settings of the enclosing config.
type ConvLayer struct {
	Filters map[int]int `json:"filters"`

	PoolSize   *int     `json:"pool_size,omitempty"`
	PoolStride *int     `json:"pool_stride,omitempty"`
	BatchNorm  *bool    `json:"batch_normalization,omitempty"`
	Activation *string  `json:"activation,omitempty"`
	Dropout    *float64 `json:"dropout,omitempty"`
}

// A SequenceInputConfig describes how raw sequences are
// encoded and transformed into a feature representation.
type SequenceInputConfig struct {
	// Name identifies the input within a model.
	Name string `json:"name"`

	// Length is the maximum number of sequence symbols.
	Length int `json:"length"`

	// VariableLength permits sequences shorter than
	// Length, padding them with the pad token.
	VariableLength bool `json:"variable_length"`

	// MaskZero controls whether embedded padding timesteps
	// are zeroed out.
	// When nil, it defaults to VariableLength.
	MaskZero *bool `json:"mask_zero"`

	Encoding Encoding `json:"encoding"`

	AddStartTokens          bool `json:"add_start_tokens"`
	AddStopTokens           bool `json:"add_stop_tokens"`
	AddNormalizedPosition   bool `json:"add_normalized_position"`
	AddNormalizedCentrality bool `json:"add_normalized_centrality"`

	// ReturnSequences keeps the time axis in the final
	// representation instead of flattening it away.
	ReturnSequences bool `json:"return_sequences"`

	EmbeddingDim     int     `json:"embedding_dim"`
	EmbeddingDropout float64 `json:"embedding_dropout"`

	ConvFilterSizes  []ConvLayer `json:"conv_filter_sizes"`
	RepeatConvLayers int         `json:"repeat_conv_layers"`
	ConvDropout      float64     `json:"conv_dropout"`
	ConvBatchNorm    bool        `json:"conv_batch_normalization"`
	ConvActivation   string      `json:"conv_activation"`
	PoolSize         int         `json:"pool_size"`
	PoolStride       int         `json:"pool_stride"`

	RNNLayerSizes    []int  `json:"rnn_layer_sizes"`
	RNNType          string `json:"rnn_type"`
	RNNBidirectional bool   `json:"rnn_bidirectional"`

	GlobalPooling          bool    `json:"global_pooling"`
	GlobalPoolingBatchNorm bool    `json:"global_pooling_batch_normalization"`
	GlobalPoolingDropout   float64 `json:"global_pooling_dropout"`

	DenseLayerSizes []int   `json:"dense_layer_sizes"`
	DenseActivation string  `json:"dense_activation"`
	DenseDropout    float64 `json:"dense_dropout"`
	DenseBatchNorm  bool    `json:"dense_batch_normalization"`

	NumHighwayLayers  int     `json:"n_highway_layers"`
	HighwayActivation string  `json:"highway_activation"`
	HighwayBatchNorm  bool    `json:"highway_batch_normalization"`
	HighwayDropout    float64 `json:"highway_dropout"`
}

// NewSequenceInputConfig creates a config with default
// settings for everything except Length, which has no
// sensible default and must be set by the caller.
func NewSequenceInputConfig() *SequenceInputConfig {
	return &SequenceInputConfig{
		Encoding: EncodingOneHot,

		EmbeddingDim: 32,

		RepeatConvLayers: 1,
		ConvActivation:   "linear",
		PoolSize:         3,
		PoolStride:       2,

		RNNType:          "lstm",
		RNNBidirectional: true,

		DenseActivation: "relu",
		DenseDropout:    0.25,

		HighwayActivation: "tanh",
	}
}

// A SequenceInput turns raw sequences into encoded tensors
// and builds the network fragment that transforms those
// tensors into a feature representation.
type SequenceInput struct {
	// ConvWeightSource, if non-nil, is another sequence
	// input whose convolution layers supply this input's
	// convolution parameters.
	// The source's fragment is built at most once and then
	// shared by every dependent.
	ConvWeightSource *SequenceInput

	config  *SequenceInputConfig
	encoder *pepenc.Encoder

	maskZero     bool
	paddedLength int
	numSymbols   int

	// inputDims is 0 for the embedding encoding, which
	// takes symbol indices rather than dense vectors.
	inputDims int

	built *Fragment
}

// NewSequenceInput validates a config and creates a
// SequenceInput.
func NewSequenceInput(conf *SequenceInputConfig) (*SequenceInput, error) {
	if conf.Length <= 0 {
		return nil, fmt.Errorf("invalid sequence length: %d", conf.Length)
	}
	if !conf.Encoding.valid() {
		return nil, fmt.Errorf("invalid encoding: %d", int(conf.Encoding))
	}
	extras := 0
	if conf.AddNormalizedPosition {
		extras++
	}
	if conf.AddNormalizedCentrality {
		extras++
	}
	if conf.Encoding == EncodingEmbedding && extras > 0 {
		return nil, fmt.Errorf("cannot add positional features to an embedding encoding")
	}

	res := &SequenceInput{
		config: copySequenceInputConfig(conf),
		encoder: &pepenc.Encoder{
			VariableLength:          conf.VariableLength,
			AddStartTokens:          conf.AddStartTokens,
			AddStopTokens:           conf.AddStopTokens,
			AddNormalizedPosition:   conf.AddNormalizedPosition,
			AddNormalizedCentrality: conf.AddNormalizedCentrality,
		},
	}
	res.maskZero = conf.VariableLength
	if conf.MaskZero != nil {
		res.maskZero = *conf.MaskZero
	}
	res.paddedLength = res.encoder.PaddedLength(conf.Length)
	res.numSymbols = res.encoder.NumTokens()
	switch conf.Encoding {
	case EncodingEmbedding:
		res.inputDims = 0
	case EncodingOneHot:
		res.inputDims = res.numSymbols + extras
	default:
		res.inputDims = len(pepenc.Alphabet) + extras
	}
	return res, nil
}

// SequenceInputFromMap reconstructs a SequenceInput from a
// plain configuration mapping, such as one produced by
// decoding JSON.
//
// A trip through JSON turns the integer filter-width keys
// of conv_filter_sizes into strings; this repairs them.
func SequenceInputFromMap(m map[string]interface{}) (*SequenceInput, error) {
	conf, err := SequenceInputConfigFromMap(m)
	if err != nil {
		return nil, err
	}
	return NewSequenceInput(conf)
}

// SequenceInputConfigFromMap decodes a plain configuration
// mapping, applying the key-type repairs described at
// SequenceInputFromMap.
//
// Missing keys take their default values.
func SequenceInputConfigFromMap(m map[string]interface{}) (*SequenceInputConfig, error) {
	fixed := make(map[string]interface{}, len(m))
	for k, v := range m {
		fixed[k] = v
	}
	if raw, ok := fixed["conv_filter_sizes"]; ok && raw != nil {
		repaired, err := repairConvLayers(raw)
		if err != nil {
			return nil, err
		}
		fixed["conv_filter_sizes"] = repaired
	}
	// A single number is treated as a one-layer list.
	if num, ok := fixed["rnn_layer_sizes"].(float64); ok {
		fixed["rnn_layer_sizes"] = []interface{}{num}
	}

	data, err := json.Marshal(fixed)
	if err != nil {
		return nil, essentials.AddCtx("read sequence input config", err)
	}
	conf := NewSequenceInputConfig()
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, essentials.AddCtx("read sequence input config", err)
	}
	return conf, nil
}

// repairConvLayers normalizes the wire forms of
// conv_filter_sizes: a single layer record is treated as a
// one-element list, and each record may either have an
// explicit "filters" key or list width-to-count pairs
// directly alongside its overrides.
func repairConvLayers(raw interface{}) ([]map[string]interface{}, error) {
	var records []interface{}
	switch v := raw.(type) {
	case []interface{}:
		records = v
	case map[string]interface{}:
		records = []interface{}{v}
	default:
		return nil, convLayerTypeError(raw)
	}

	res := make([]map[string]interface{}, len(records))
	for i, record := range records {
		m, ok := record.(map[string]interface{})
		if !ok {
			return nil, convLayerTypeError(record)
		}
		filters := map[string]interface{}{}
		repaired := map[string]interface{}{"filters": filters}
		for key, value := range m {
			if _, err := strconv.Atoi(key); err == nil {
				filters[key] = value
				continue
			}
			switch key {
			case "filters":
				sub, ok := value.(map[string]interface{})
				if !ok {
					return nil, convLayerTypeError(value)
				}
				for width, count := range sub {
					filters[width] = count
				}
			case "pool_size", "pool_stride", "batch_normalization",
				"activation", "dropout":
				repaired[key] = value
			default:
				return nil, fmt.Errorf("unknown convolution layer key: %q", key)
			}
		}
		res[i] = repaired
	}
	return res, nil
}

func convLayerTypeError(value interface{}) error {
	return fmt.Errorf("each element of conv_filter_sizes must be a "+
		"width-to-filter-count map, got %v : %T", value, value)
}

// Name returns the input's name.
func (s *SequenceInput) Name() string {
	return s.config.Name
}

// Config returns a copy of the input's configuration.
func (s *SequenceInput) Config() *SequenceInputConfig {
	return copySequenceInputConfig(s.config)
}

// PaddedLength returns the number of timesteps per
// sequence, including start and stop tokens.
func (s *SequenceInput) PaddedLength() int {
	return s.paddedLength
}

// NumSymbols returns the vocabulary size.
func (s *SequenceInput) NumSymbols() int {
	return s.numSymbols
}

// InputDims returns the number of components per timestep
// for dense encodings, or 0 for the embedding encoding.
func (s *SequenceInput) InputDims() int {
	return s.inputDims
}

// Placeholder describes the input tensor a built fragment
// expects.
func (s *SequenceInput) Placeholder() *Placeholder {
	if s.config.Encoding == EncodingEmbedding {
		return MakeIndexSequenceInput(s.config.Name, s.paddedLength)
	}
	return MakeVectorSequenceInput(s.config.Name, s.paddedLength, s.inputDims)
}

// Encode converts raw sequences into the tensor the built
// fragment expects.
func (s *SequenceInput) Encode(seqs []string) (*pepenc.Tensor, error) {
	switch s.config.Encoding {
	case EncodingEmbedding:
		return s.encoder.EncodeIndices(seqs, s.config.Length)
	case EncodingOneHot:
		return s.encoder.EncodeOneHot(seqs, s.config.Length)
	case EncodingBlosum:
		return s.encoder.EncodeBlosum(seqs, s.config.Length)
	case EncodingPMBEC:
		return s.encoder.EncodePMBEC(seqs, s.config.Length)
	default:
		return nil, fmt.Errorf("invalid encoding: %d", int(s.config.Encoding))
	}
}

// Build creates the fragment transforming encoded inputs
// into the configured feature representation.
//
// Each call produces a fragment with fresh parameters,
// except for convolution parameters taken from a
// ConvWeightSource.
func (s *SequenceInput) Build(c anyvec.Creator) (*Fragment, error) {
	b := &fragmentBuilder{
		creator: c,
		conf:    s.config,
		steps:   s.paddedLength,
		depth:   s.inputDims,
	}

	if err := b.embedding(s); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}
	if err := b.conv(s); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}
	if err := b.recurrent(); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}
	if err := b.globalPooling(); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}
	if err := b.dense(); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}
	if err := b.highway(); err != nil {
		return nil, essentials.AddCtx("build input "+s.config.Name, err)
	}

	return &Fragment{
		Placeholder: s.Placeholder(),
		Net:         b.net,
		OutSteps:    b.steps,
		OutDepth:    b.depth,
		convLayers:  b.convLayers,
	}, nil
}

// fragment builds the input's fragment at most once,
// caching it for reuse as a convolution weight source.
func (s *SequenceInput) fragment(c anyvec.Creator) (*Fragment, error) {
	if s.built == nil {
		frag, err := s.Build(c)
		if err != nil {
			return nil, err
		}
		s.built = frag
	}
	return s.built, nil
}

// A fragmentBuilder accumulates layers while tracking the
// shape of each sample as a steps-by-depth tensor.
type fragmentBuilder struct {
	creator anyvec.Creator
	conf    *SequenceInputConfig

	steps int
	depth int

	net        anynet.Net
	convLayers []*peplayer.AlignedConv
}

func (b *fragmentBuilder) embedding(s *SequenceInput) error {
	if b.conf.Encoding != EncodingEmbedding {
		return nil
	}
	if b.conf.EmbeddingDim <= 0 {
		return fmt.Errorf("invalid embedding dim: %d", b.conf.EmbeddingDim)
	}
	emb := peplayer.NewEmbedding(b.creator, s.numSymbols, b.conf.EmbeddingDim)
	emb.MaskZero = s.maskZero
	b.net = append(b.net, emb)
	b.depth = b.conf.EmbeddingDim
	b.dropout(b.conf.EmbeddingDropout)
	return nil
}

func (b *fragmentBuilder) conv(s *SequenceInput) error {
	if len(b.conf.ConvFilterSizes) == 0 {
		return nil
	}

	var sourceConvs []*peplayer.AlignedConv
	if s.ConvWeightSource != nil {
		sourceFrag, err := s.ConvWeightSource.fragment(b.creator)
		if err != nil {
			return essentials.AddCtx("build conv weight source", err)
		}
		sourceConvs = sourceFrag.ConvLayers()
	}

	numLayers := b.conf.RepeatConvLayers * len(b.conf.ConvFilterSizes)
	var layerIndex int
	for rep := 0; rep < b.conf.RepeatConvLayers; rep++ {
		for _, layerConf := range b.conf.ConvFilterSizes {
			resolved := resolveConvLayer(b.conf, &layerConf)
			if len(resolved.Filters) == 0 {
				continue
			}

			conv, err := b.convLayer(sourceConvs, layerIndex, resolved.Filters)
			if err != nil {
				return err
			}
			b.net = append(b.net, conv)
			b.convLayers = append(b.convLayers, conv)
			b.depth = conv.OutputDepth()
			layerIndex++

			act, err := activationLayer(resolved.Activation)
			if err != nil {
				return err
			}
			if act != nil {
				b.net = append(b.net, act)
			}
			if resolved.BatchNorm {
				b.net = append(b.net, anyconv.NewBatchNorm(b.creator, b.depth))
			}
			b.dropout(resolved.Dropout)

			pooling := resolved.PoolSize > 1 || resolved.PoolStride > 1
			if pooling && layerIndex < numLayers {
				pool := peplayer.NewLocalMaxPool(resolved.PoolSize,
					resolved.PoolStride, b.steps, b.depth)
				b.net = append(b.net, pool)
				b.steps = pool.OutputSteps()
			}
		}
	}
	return nil
}

// convLayer creates a convolution layer, or reuses the
// corresponding layer of the weight source.
func (b *fragmentBuilder) convLayer(sourceConvs []*peplayer.AlignedConv,
	layerIndex int, filters map[int]int) (*peplayer.AlignedConv, error) {
	if layerIndex >= len(sourceConvs) {
		return peplayer.NewAlignedConv(b.creator, b.steps, b.depth, filters)
	}
	conv := sourceConvs[layerIndex]
	if conv.InputSteps != b.steps || conv.InputDepth != b.depth {
		return nil, fmt.Errorf("convolution weight source shape mismatch "+
			"at layer %d", layerIndex)
	}
	for i, width := range conv.Widths {
		if filters[width] != conv.Convs[i].FilterCount {
			return nil, fmt.Errorf("convolution weight source filter mismatch "+
				"at layer %d", layerIndex)
		}
	}
	return conv, nil
}

func (b *fragmentBuilder) recurrent() error {
	if len(b.conf.RNNLayerSizes) == 0 {
		return nil
	}
	rec, err := peplayer.NewRecurrent(b.creator, b.steps, b.depth,
		b.conf.RNNLayerSizes, b.conf.RNNType, b.conf.RNNBidirectional,
		b.conf.ReturnSequences)
	if err != nil {
		return err
	}
	b.net = append(b.net, rec)
	b.steps = rec.OutputSteps()
	b.depth = rec.OutputDepth
	return nil
}

func (b *fragmentBuilder) globalPooling() error {
	if !b.conf.GlobalPooling {
		return nil
	}
	if b.steps <= 1 {
		return fmt.Errorf("global pooling requires a time axis")
	}
	pool := peplayer.NewGlobalMaxAndMeanPool(b.steps, b.depth)
	b.net = append(b.net, pool)
	b.steps = 1
	b.depth = pool.OutputDepth()
	if b.conf.GlobalPoolingBatchNorm {
		b.net = append(b.net, anyconv.NewBatchNorm(b.creator, b.depth))
	}
	b.dropout(b.conf.GlobalPoolingDropout)
	return nil
}

func (b *fragmentBuilder) dense() error {
	b.flatten()
	if len(b.conf.DenseLayerSizes) == 0 {
		return nil
	}
	net, outDepth, err := denseStack(b.creator, b.depth, b.conf.DenseLayerSizes,
		b.conf.DenseActivation, b.conf.DenseDropout, b.conf.DenseBatchNorm)
	if err != nil {
		return err
	}
	b.timeDistributed(net)
	b.depth = outDepth
	return nil
}

func (b *fragmentBuilder) highway() error {
	b.flatten()
	if b.conf.NumHighwayLayers <= 0 {
		return nil
	}
	act, err := activationLayer(b.conf.HighwayActivation)
	if err != nil {
		return err
	}
	var net anynet.Net
	for i := 0; i < b.conf.NumHighwayLayers; i++ {
		net = append(net, peplayer.NewHighway(b.creator, b.depth, act))
	}
	b.timeDistributed(net)
	if b.conf.HighwayBatchNorm {
		b.net = append(b.net, anyconv.NewBatchNorm(b.creator, b.depth))
	}
	b.dropout(b.conf.HighwayDropout)
	return nil
}

// flatten folds any remaining time axis into the depth
// axis, unless sequence-shaped output was requested.
// The packed layout makes this pure bookkeeping.
func (b *fragmentBuilder) flatten() {
	if b.steps > 1 && !b.conf.ReturnSequences {
		b.depth *= b.steps
		b.steps = 1
	}
}

// timeDistributed appends layers, applying them per
// timestep when the representation still has a time axis.
func (b *fragmentBuilder) timeDistributed(net anynet.Net) {
	if len(net) == 0 {
		return
	}
	if b.steps > 1 {
		b.net = append(b.net, &peplayer.TimeDistributed{Steps: b.steps, Layer: net})
	} else {
		b.net = append(b.net, net...)
	}
}

func (b *fragmentBuilder) dropout(prob float64) {
	if prob > 0 {
		b.net = append(b.net, &anynet.Dropout{Enabled: true, KeepProb: 1 - prob})
	}
}

type resolvedConvLayer struct {
	Filters    map[int]int
	PoolSize   int
	PoolStride int
	BatchNorm  bool
	Activation string
	Dropout    float64
}

// resolveConvLayer merges a layer's overrides over the
// stack-level defaults without touching either config.
func resolveConvLayer(conf *SequenceInputConfig, layer *ConvLayer) *resolvedConvLayer {
	res := &resolvedConvLayer{
		Filters:    layer.Filters,
		PoolSize:   conf.PoolSize,
		PoolStride: conf.PoolStride,
		BatchNorm:  conf.ConvBatchNorm,
		Activation: conf.ConvActivation,
		Dropout:    conf.ConvDropout,
	}
	if layer.PoolSize != nil {
		res.PoolSize = *layer.PoolSize
	}
	if layer.PoolStride != nil {
		res.PoolStride = *layer.PoolStride
	}
	if layer.BatchNorm != nil {
		res.BatchNorm = *layer.BatchNorm
	}
	if layer.Activation != nil {
		res.Activation = *layer.Activation
	}
	if layer.Dropout != nil {
		res.Dropout = *layer.Dropout
	}
	return res
}

func copySequenceInputConfig(conf *SequenceInputConfig) *SequenceInputConfig {
	res := *conf
	if conf.MaskZero != nil {
		maskZero := *conf.MaskZero
		res.MaskZero = &maskZero
	}
	res.ConvFilterSizes = make([]ConvLayer, len(conf.ConvFilterSizes))
	for i, layer := range conf.ConvFilterSizes {
		res.ConvFilterSizes[i] = layer
		res.ConvFilterSizes[i].Filters = make(map[int]int, len(layer.Filters))
		for width, count := range layer.Filters {
			res.ConvFilterSizes[i].Filters[width] = count
		}
	}
	res.RNNLayerSizes = append([]int{}, conf.RNNLayerSizes...)
	res.DenseLayerSizes = append([]int{}, conf.DenseLayerSizes...)
	return &res
}
