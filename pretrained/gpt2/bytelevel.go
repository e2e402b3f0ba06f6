package gpt2

import (
	"regexp"
	"strings"
)

// pretokenize splits text into words that keep their leading space, the
// way the byte level BPE vocabulary was trained.
var pretokenize = regexp.MustCompile(`'(?:s|t|re|ve|m|ll|d)| ?\pL+| ?\pN+| ?[^\s\pL\pN]+|\s+`)

// byteEncoder maps every byte to a printable rune; byteDecoder inverts it.
var byteEncoder, byteDecoder = byteTables()

func byteTables() (enc [256]rune, dec map[rune]byte) {
	dec = make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		printable := (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff)
		if printable {
			enc[b] = rune(b)
		} else {
			enc[b] = rune(256 + n)
			n++
		}
		dec[enc[b]] = byte(b)
	}
	return
}

// toUnicode returns the byte level form of word.
func toUnicode(word string) string {
	var sb strings.Builder
	for i := 0; i < len(word); i++ {
		sb.WriteRune(byteEncoder[word[i]])
	}
	return sb.String()
}

// fromUnicode inverts toUnicode. Runes outside the table are kept as UTF-8.
func fromUnicode(token string) []byte {
	out := make([]byte, 0, len(token))
	for _, r := range token {
		if b, ok := byteDecoder[r]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, string(r)...)
	}
	return out
}
