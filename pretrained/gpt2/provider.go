// Package gpt2 provides a pretrained GPT-2 for synthetic text: the byte
// level BPE tokenizer and generation on ONNX Runtime.
//
// A model directory holds vocab.json, merges.txt and model.onnx, an export
// with past key values. The onnxruntime shared library is located through
// ONNXRUNTIME_SHARED_LIBRARY_PATH.
package gpt2

import "path/filepath"

// Provider is a GPT-2 tokenizer and model implementing pretrained.Provider.
type Provider struct {
	*Tokenizer
	model *Model
}

// Open loads the tokenizer and the model of dir. deviceID selects a CUDA
// device; empty runs on the CPU. seed drives sampling.
func Open(dir, deviceID string, seed uint64) (*Provider, error) {
	t, err := LoadTokenizer(dir)
	if err != nil {
		return nil, err
	}
	m := NewModel(filepath.Join(dir, "model.onnx"), deviceID, len(t.Vocab()), seed)
	if err := m.Init(); err != nil {
		return nil, err
	}
	return &Provider{Tokenizer: t, model: m}, nil
}

// Generate continues prompt to at most maxLength tokens in total.
func (p *Provider) Generate(prompt []int, maxLength int) ([]int, error) {
	steps := maxLength - len(prompt)
	if steps <= 0 {
		return prompt[:min(len(prompt), maxLength)], nil
	}
	in := make([]int64, len(prompt))
	for i, id := range prompt {
		in[i] = int64(id)
	}
	gen, err := p.model.Generate(in, int64(steps), int64(p.EOS()))
	if err != nil {
		return nil, err
	}
	out := append([]int(nil), prompt...)
	for _, id := range gen {
		out = append(out, int(id))
	}
	return out, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	return p.model.Destroy()
}
