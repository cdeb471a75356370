package pepnet

import (
	"encoding/json"
	"testing"
)

func TestParseEncoding(t *testing.T) {
	names := map[string]Encoding{
		"embedding": EncodingEmbedding,
		"onehot":    EncodingOneHot,
		"blosum":    EncodingBlosum,
		"pmbec":     EncodingPMBEC,
	}
	for name, expected := range names {
		actual, err := ParseEncoding(name)
		if err != nil {
			t.Errorf("%s: %s", name, err)
		} else if actual != expected {
			t.Errorf("%s: expected %v but got %v", name, expected, actual)
		}
		if actual.String() != name {
			t.Errorf("expected name %q but got %q", name, actual.String())
		}
	}
	if _, err := ParseEncoding("qwerty"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestEncodingJSON(t *testing.T) {
	data, err := json.Marshal(EncodingBlosum)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"blosum"` {
		t.Errorf("unexpected JSON: %s", data)
	}
	var e Encoding
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e != EncodingBlosum {
		t.Errorf("expected %v but got %v", EncodingBlosum, e)
	}

	if _, err := json.Marshal(Encoding(17)); err == nil {
		t.Error("expected error for invalid encoding")
	}
	if err := json.Unmarshal([]byte(`"qwerty"`), &e); err == nil {
		t.Error("expected error for unknown encoding name")
	}
}
