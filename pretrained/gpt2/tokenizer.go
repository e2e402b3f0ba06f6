package gpt2

import (
	"path/filepath"

	"github.com/jonasknobloch/mbpe"
	"github.com/pkg/errors"
)

// EndOfText is the GPT-2 end of sequence token.
const EndOfText = "<|endoftext|>"

// Tokenizer is the GPT-2 byte level BPE tokenizer.
type Tokenizer struct {
	m     *mbpe.MBPE
	vocab []string
	eos   int
}

// LoadTokenizer reads vocab.json and merges.txt from dir.
func LoadTokenizer(dir string) (*Tokenizer, error) {
	m := mbpe.NewMBPE()
	if err := m.Load(filepath.Join(dir, "vocab.json"), filepath.Join(dir, "merges.txt")); err != nil {
		return nil, errors.Wrapf(err, "loading tokenizer from %s", dir)
	}
	t := &Tokenizer{m: m, vocab: m.Vocab(), eos: -1}
	for i, v := range t.vocab {
		if v == EndOfText {
			t.eos = i
		}
	}
	if t.eos < 0 {
		return nil, errors.Errorf("%s: vocabulary has no %s token", dir, EndOfText)
	}
	return t, nil
}

// Vocab returns the byte level tokens in id order.
func (t *Tokenizer) Vocab() []string {
	return t.vocab
}

// EOS returns the id of EndOfText.
func (t *Tokenizer) EOS() int {
	return t.eos
}

// Encode tokenizes text.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for _, word := range pretokenize.FindAllString(text, -1) {
		ids = append(ids, t.m.Tokenize(toUnicode(word))...)
	}
	return ids, nil
}

// Decode joins the tokens of ids and maps them back to bytes.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var out []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.vocab) {
			return "", errors.Errorf("token %d out of vocabulary of %d", id, len(t.vocab))
		}
		out = append(out, fromUnicode(t.vocab[id])...)
	}
	return string(out), nil
}
