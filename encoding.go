package pepnet

import (
	"encoding/json"
	"fmt"
)

// An Encoding determines how sequence symbols are
// represented numerically.
type Encoding int

// These are the supported encodings.
const (
	// EncodingEmbedding feeds symbol indices into a learned
	// vector embedding.
	EncodingEmbedding Encoding = iota

	// EncodingOneHot represents each symbol as a binary
	// indicator vector.
	EncodingOneHot

	// EncodingBlosum represents each symbol as its row of
	// the BLOSUM62 substitution matrix.
	EncodingBlosum

	// EncodingPMBEC represents each symbol as its row of
	// the PMBEC matrix.
	EncodingPMBEC
)

// ParseEncoding resolves an encoding by its configuration
// name.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "embedding":
		return EncodingEmbedding, nil
	case "onehot":
		return EncodingOneHot, nil
	case "blosum":
		return EncodingBlosum, nil
	case "pmbec":
		return EncodingPMBEC, nil
	default:
		return 0, fmt.Errorf("invalid encoding: %q", name)
	}
}

// String returns the configuration name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingEmbedding:
		return "embedding"
	case EncodingOneHot:
		return "onehot"
	case EncodingBlosum:
		return "blosum"
	case EncodingPMBEC:
		return "pmbec"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

func (e Encoding) valid() bool {
	return e >= EncodingEmbedding && e <= EncodingPMBEC
}

// MarshalJSON marshals the encoding as its name.
func (e Encoding) MarshalJSON() ([]byte, error) {
	if !e.valid() {
		return nil, fmt.Errorf("invalid encoding: %d", int(e))
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON unmarshals an encoding from its name.
func (e *Encoding) UnmarshalJSON(d []byte) error {
	var name string
	if err := json.Unmarshal(d, &name); err != nil {
		return err
	}
	parsed, err := ParseEncoding(name)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
