// Package tokenizer loads a serialized vocabulary and merge-rule artifact
// (the huggingface tokenizer.json format) and encodes text for text models.
package tokenizer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Encoding is a tokenized input ready to be arranged into tensors.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
}

// Tokenizer is loaded once and shared by all exchanges.
type Tokenizer struct {
	// encoding is serialized
	mu sync.Mutex
	tk *tokenizer.Tokenizer
}

func Load(path string) (*Tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", path, err)
	}
	return &Tokenizer{tk: tk}, nil
}

// Encode tokenizes text with the artifact's special tokens added.
func (t *Tokenizer) Encode(text string) (Encoding, error) {
	t.mu.Lock()
	en, err := t.tk.EncodeSingle(text, true)
	t.mu.Unlock()
	if err != nil {
		return Encoding{}, err
	}
	ids := en.GetIds()
	if len(ids) == 0 {
		return Encoding{}, errors.New("text produced no tokens")
	}
	mask := en.GetAttentionMask()
	if len(mask) != len(ids) {
		return Encoding{}, fmt.Errorf("attention mask has %d entries for %d tokens", len(mask), len(ids))
	}
	return Encoding{IDs: widen(ids), AttentionMask: widen(mask)}, nil
}

func widen(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
