// Package pretrained defines the pretrained model capability used to
// manufacture synthetic training text: a vocabulary, a tokenizer and a
// bounded generation call.
package pretrained

// Provider is a pretrained causal model together with its tokenizer.
type Provider interface {

	// Vocab returns the vocabulary in token id order. The order is stable.
	Vocab() []string

	// EOS returns the end of sequence token id, also used for padding.
	EOS() int

	// Encode tokenizes text without padding or truncation.
	Encode(text string) ([]int, error)

	// Decode turns token ids back into text.
	Decode(ids []int) (string, error)

	// Generate continues prompt and returns prompt plus continuation,
	// at most maxLength tokens in total.
	Generate(prompt []int, maxLength int) ([]int, error)
}

// EncodeFixed tokenizes text to exactly n tokens, truncating long text and
// right padding short text with the EOS token.
func EncodeFixed(p Provider, text string, n int) ([]int, error) {
	ids, err := p.Encode(text)
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	k := copy(out, ids)
	for i := k; i < n; i++ {
		out[i] = p.EOS()
	}
	return out, nil
}

// DecodeText decodes ids, skipping the EOS token.
func DecodeText(p Provider, ids []int) (string, error) {
	eos := p.EOS()
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != eos {
			kept = append(kept, id)
		}
	}
	return p.Decode(kept)
}
