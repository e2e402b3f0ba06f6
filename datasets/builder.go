package datasets

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrExists is returned when shards with the builder prefix already exist.
var ErrExists = errors.New("packed shards already exist")

// Builder packs token streams into fixed size shard files named
// <prefix>_<counter>.bin. The last chunk is padded with the separator token.
type Builder struct {
	dir       string
	prefix    string
	chunkSize int
	sep       int
	dtype     byte

	arr     []int
	idx     int
	counter int
	files   []string
}

// NewBuilder creates a builder writing into dir. Existing shards with the
// same prefix are never overwritten.
func NewBuilder(dir, prefix string, chunkSize, sep, vocabSize int) (*Builder, error) {
	if chunkSize <= 0 {
		return nil, errors.Errorf("chunk size %d must be positive", chunkSize)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	existing, err := globShards(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Wrapf(ErrExists, "%d files with prefix %q in %s", len(existing), prefix, dir)
	}
	dtype := DtypeInt32
	if vocabSize > 0 && vocabSize < 65500 {
		dtype = DtypeUint16
	}
	b := &Builder{
		dir:       dir,
		prefix:    prefix,
		chunkSize: chunkSize,
		sep:       sep,
		dtype:     dtype,
		arr:       make([]int, chunkSize),
	}
	b.fill()
	return b, nil
}

func (b *Builder) fill() {
	for i := range b.arr {
		b.arr[i] = b.sep
	}
	b.idx = 0
}

// Add appends tokens, writing every chunk that fills up.
func (b *Builder) Add(tokens []int) error {
	for len(tokens) > 0 {
		n := copy(b.arr[b.idx:], tokens)
		b.idx += n
		tokens = tokens[n:]
		if b.idx == b.chunkSize {
			if err := b.write(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finish writes the partially filled last chunk, if any.
func (b *Builder) Finish() error {
	if b.idx == 0 {
		return nil
	}
	return b.write()
}

// Files returns the shard files written so far.
func (b *Builder) Files() []string {
	return b.files
}

func (b *Builder) write() error {
	name := filepath.Join(b.dir, fmt.Sprintf("%s_%010d.bin", b.prefix, b.counter))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	err = b.encode(w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	b.files = append(b.files, name)
	b.counter++
	b.fill()
	return nil
}

func (b *Builder) encode(w *bufio.Writer) error {
	var hdr [packedHeader]byte
	copy(hdr[:7], packedMagic)
	binary.LittleEndian.PutUint64(hdr[7:15], packedVersion)
	hdr[15] = b.dtype
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(b.chunkSize))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	var buf [4]byte
	for _, t := range b.arr {
		if b.dtype == DtypeUint16 {
			binary.LittleEndian.PutUint16(buf[:2], uint16(t))
			if _, err := w.Write(buf[:2]); err != nil {
				return err
			}
			continue
		}
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(t)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}
