package datasets

import (
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
)

type constSource struct {
	id   int
	left int // -1 is unbounded
}

func (c *constSource) Next() (Sequence, error) {
	if c.left == 0 {
		return nil, io.EOF
	}
	if c.left > 0 {
		c.left--
	}
	return Sequence{c.id, c.id}, nil
}

func (c *constSource) Reset() error {
	return nil
}

func TestCombinedProportions(t *testing.T) {
	weights := []float64{33, 33, 24, 10}
	var sources []Source
	for i := range weights {
		sources = append(sources, &constSource{id: i, left: -1})
	}
	c, err := NewCombined(sources, weights, 1337)
	if err != nil {
		t.Fatal(err)
	}
	const draws = 100000
	var counts [4]int
	for i := 0; i < draws; i++ {
		seq, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		counts[seq[0]]++
	}
	for i, w := range weights {
		got := float64(counts[i]) / draws
		want := w / 100
		if math.Abs(got-want) > 0.01 {
			t.Errorf("source %d drawn %.4f of the time, want %.4f", i, got, want)
		}
	}
}

func TestCombinedDeterministic(t *testing.T) {
	mk := func(seed uint64) []int {
		c, err := NewCombined([]Source{&constSource{id: 0, left: -1}, &constSource{id: 1, left: -1}}, []float64{1, 1}, seed)
		if err != nil {
			t.Fatal(err)
		}
		var out []int
		for i := 0; i < 64; i++ {
			s, _ := c.Next()
			out = append(out, s[0])
		}
		return out
	}
	a, b, other := mk(7), mk(7), mk(8)
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d", i)
		}
		if a[i] != other[i] {
			same = false
		}
	}
	if same {
		t.Errorf("seeds 7 and 8 produced the same draw order")
	}
}

func TestCombinedExhaustion(t *testing.T) {
	c, err := NewCombined([]Source{&constSource{id: 0, left: 3}, &constSource{id: 1, left: 2}}, []float64{9, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	for {
		_, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 5 {
		t.Errorf("drew %d sequences, want all 5", n)
	}
}

func TestCombinedEmpty(t *testing.T) {
	if _, err := NewCombined(nil, nil, 0); !errors.Is(err, ErrNoData) {
		t.Errorf("empty source set gave %v", err)
	}
}

func TestOpenCorporaEmptyDir(t *testing.T) {
	dir := t.TempDir()
	corpora := []Corpus{{Prefix: "arxiv_sample", Weight: 1}, {Prefix: "c4_sample", Weight: 2}}
	_, err := OpenCorpora(dir, corpora, PackedOptions{NChunks: 1, BlockSize: 4, World: 1}, nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("empty directory gave %v, want ErrNoData", err)
	}
}

func TestOpenCorporaSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBuilder(dir, "book_sample", 8, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add([]int{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}
	corpora := []Corpus{{Prefix: "arxiv_sample", Weight: 1}, {Prefix: "book_sample", Weight: 3}}
	c, err := OpenCorpora(dir, corpora, PackedOptions{NChunks: 1, BlockSize: 4, World: 1, Wrap: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w := c.weights; len(w) != 1 || w[0] != 1 {
		t.Errorf("weights %v, want the single present corpus", w)
	}
}
