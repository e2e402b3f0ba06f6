package gpt2

import "testing"

func TestByteTablesRoundTrip(t *testing.T) {
	seen := map[rune]bool{}
	for b := 0; b < 256; b++ {
		r := byteEncoder[b]
		if seen[r] {
			t.Fatalf("rune %q used twice", r)
		}
		seen[r] = true
	}
	if byteEncoder[' '] != 'Ġ' || byteEncoder['\n'] != 'Ċ' || byteEncoder['a'] != 'a' {
		t.Errorf("space %q newline %q", byteEncoder[' '], byteEncoder['\n'])
	}
	text := " héllo\n\tworld\x00"
	if got := string(fromUnicode(toUnicode(text))); got != text {
		t.Errorf("round trip %q", got)
	}
}

func TestPretokenize(t *testing.T) {
	got := pretokenize.FindAllString("Hello world, it's 2024!", -1)
	want := []string{"Hello", " world", ",", " it", "'s", " 2024", "!"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d: %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTop(t *testing.T) {
	idx, p := top([]float32{0.1, 0.5, 0.05, 0.35}, 2)
	if idx[0] != 1 || idx[1] != 3 || p[0] != 0.5 {
		t.Errorf("top %v %v", idx, p)
	}
	s := softmax([]float32{1, 1})
	if s[0] != 0.5 {
		t.Errorf("softmax %v", s)
	}
}
