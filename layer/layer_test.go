package layer

import "math/rand/v2"
import "testing"

type probe struct {
	kind   Kind
	params []*Parameter
	inits  int
}

func (p *probe) Kind() Kind               { return p.kind }
func (p *probe) Parameters() []*Parameter { return p.params }

// ones is an Other layer with its own rule.
type ones struct{ probe }

func (o *ones) Init(rng *rand.Rand) {
	o.inits++
	for _, p := range o.params {
		Fill(p.Data, 1)
	}
}

func TestArenaViews(t *testing.T) {
	a := NewArena(10)
	w := a.Alloc("w", 2, 3)
	b := a.Alloc("b", 1, 3)
	if a.Used() != 9 {
		t.Fatalf("used %d, want 9", a.Used())
	}
	w.Data[5] = 7
	b.Grad[0] = 3
	if a.Data[5] != 7 || a.Grad[6] != 3 {
		t.Errorf("parameters do not share arena storage")
	}
	a.ZeroGrad()
	if b.Grad[0] != 0 {
		t.Errorf("ZeroGrad left %v", b.Grad)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("over allocation did not panic")
		}
	}()
	a.Alloc("c", 1, 2)
}

func TestMetaArena(t *testing.T) {
	a := NewMetaArena()
	p := a.Alloc("w", 100, 100)
	if !p.Meta() || a.Used() != 10000 {
		t.Errorf("meta arena gave storage or wrong count %d", a.Used())
	}
}

func moments(data []float64) (mean, variance float64) {
	var sum, sq float64
	for _, v := range data {
		sum += v
		sq += v * v
	}
	n := float64(len(data))
	mean = sum / n
	return mean, sq/n - mean*mean
}

func TestInitAll(t *testing.T) {
	a := NewArena(4500)
	lin := &probe{kind: Linear, params: []*Parameter{a.Alloc("lin.weight", 10, 100), a.Alloc("lin.bias", 1, 100)}}
	emb := &probe{kind: Embedding, params: []*Parameter{a.Alloc("emb.weight", 20, 100)}}
	oth := &ones{probe{kind: Other, params: []*Parameter{a.Alloc("g", 10, 100)}}}
	bare := &probe{kind: Other, params: []*Parameter{a.Alloc("bare", 1, 100)}}
	Fill(lin.params[1].Data, 5)
	Fill(bare.params[0].Data, 3)

	InitAll([]Layer{lin, emb, oth, bare}, rand.New(rand.NewPCG(1337, 0)))

	for name, data := range map[string][]float64{"linear": lin.params[0].Data, "embedding": emb.params[0].Data} {
		mean, variance := moments(data)
		if mean > 0.005 || mean < -0.005 || variance > 0.0005 || variance < 0.0003 {
			t.Errorf("%s init mean %g variance %g", name, mean, variance)
		}
	}
	for _, v := range lin.params[1].Data {
		if v != 0 {
			t.Fatalf("linear bias %g, want 0", v)
		}
	}
	if oth.inits != 1 {
		t.Errorf("other layer initialized %d times", oth.inits)
	}
	for _, v := range oth.params[0].Data {
		if v != 1 {
			t.Fatalf("other init %g", v)
		}
	}
	for _, v := range bare.params[0].Data {
		if v != 3 {
			t.Fatalf("layer without a rule was touched: %g", v)
		}
	}
	if Linear.String() != "linear" || Embedding.String() != "embedding" || Other.String() != "other" {
		t.Errorf("kind names")
	}
}
