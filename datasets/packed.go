package datasets

import (
	"encoding/binary"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"
)

// Packed shard header: 7 byte magic, uint64 version, uint8 dtype code, uint64 chunk size.
const (
	packedMagic   = "LITPKDS"
	packedVersion = 1
	packedHeader  = 24
)

// Token dtype codes of the packed format.
const (
	DtypeUint8  byte = 1
	DtypeInt8   byte = 2
	DtypeInt16  byte = 3
	DtypeInt32  byte = 4
	DtypeInt64  byte = 5
	DtypeUint16 byte = 8
)

func dtypeSize(code byte) int {
	switch code {
	case DtypeUint8, DtypeInt8:
		return 1
	case DtypeInt16, DtypeUint16:
		return 2
	case DtypeInt32:
		return 4
	case DtypeInt64:
		return 8
	}
	return 0
}

// PackedOptions configures a packed shard reader.
type PackedOptions struct {
	NChunks   int    // shard files held in memory at once
	BlockSize int    // sequence length, block size + 1
	Shuffle   bool   // permute the blocks of the loaded chunks
	Wrap      bool   // restart from the first file instead of ending
	Seed      uint64 // shuffle seed, already offset by the worker rank
	Rank      int    // worker rank
	World     int    // number of workers
}

// Packed streams fixed length blocks out of packed shard files. Workers
// read disjoint files: every World-th file starting at Rank.
type Packed struct {
	files  []string
	opt    PackedOptions
	chunks int

	rng       *rand.Rand
	fileIdx   int
	buffers   [][]int
	nBlocks   int
	blockIdxs []int
	curr      int
}

// NewPacked creates a reader over files, keeping only this worker's share.
func NewPacked(files []string, opt PackedOptions) *Packed {
	if opt.World <= 0 {
		opt.World = 1
	}
	if opt.NChunks <= 0 {
		opt.NChunks = 1
	}
	maxFiles := len(files) / opt.World * opt.World
	var mine []string
	for i := opt.Rank; i < maxFiles; i += opt.World {
		mine = append(mine, files[i])
	}
	p := &Packed{
		files:  mine,
		opt:    opt,
		chunks: min(opt.NChunks, len(mine)),
	}
	p.Reset()
	return p
}

// Len returns the number of shard files this worker reads.
func (p *Packed) Len() int {
	return len(p.files)
}

// Reset restarts reading at the first file with the initial shuffle seed.
func (p *Packed) Reset() error {
	p.rng = rand.New(rand.NewPCG(p.opt.Seed, 0))
	p.fileIdx = 0
	p.buffers = nil
	p.blockIdxs = nil
	p.curr = 0
	return nil
}

func (p *Packed) load() error {
	if p.chunks == 0 {
		return io.EOF
	}
	if p.fileIdx+p.chunks > len(p.files) {
		if !p.opt.Wrap {
			return io.EOF
		}
		p.fileIdx = 0
	}
	p.buffers = p.buffers[:0]
	var chunkSize int
	for i := 0; i < p.chunks; i++ {
		name := p.files[p.fileIdx+i]
		tokens, err := ReadPackedFile(name)
		if err != nil {
			return err
		}
		if i == 0 {
			chunkSize = len(tokens)
		} else if len(tokens) != chunkSize {
			return errors.Errorf("%s: chunk size %d differs from %d of %s", name, len(tokens), chunkSize, p.files[p.fileIdx])
		}
		p.buffers = append(p.buffers, tokens)
	}
	p.nBlocks = chunkSize / p.opt.BlockSize
	if p.nBlocks == 0 {
		return errors.Errorf("chunk size %d is smaller than block size %d", chunkSize, p.opt.BlockSize)
	}
	all := p.chunks * p.nBlocks
	if p.opt.Shuffle {
		p.blockIdxs = p.rng.Perm(all)
	} else {
		p.blockIdxs = make([]int, all)
		for i := range p.blockIdxs {
			p.blockIdxs[i] = i
		}
	}
	p.fileIdx += p.chunks
	p.curr = 0
	return nil
}

// Next returns the next block.
func (p *Packed) Next() (Sequence, error) {
	if p.curr >= len(p.blockIdxs) {
		if err := p.load(); err != nil {
			return nil, err
		}
	}
	idx := p.blockIdxs[p.curr]
	p.curr++
	buf := p.buffers[idx/p.nBlocks]
	elem := (idx % p.nBlocks) * p.opt.BlockSize
	seq := make(Sequence, p.opt.BlockSize)
	copy(seq, buf[elem:elem+p.opt.BlockSize])
	return seq, nil
}

// ReadPackedFile reads all tokens of one packed shard file.
func ReadPackedFile(name string) ([]int, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if len(data) < packedHeader || string(data[:7]) != packedMagic {
		return nil, errors.Errorf("%s: not a packed shard file", name)
	}
	if v := binary.LittleEndian.Uint64(data[7:15]); v != packedVersion {
		return nil, errors.Errorf("%s: unsupported packed version %d", name, v)
	}
	code := data[15]
	size := dtypeSize(code)
	if size == 0 {
		return nil, errors.Errorf("%s: unsupported dtype code %d", name, code)
	}
	chunkSize := binary.LittleEndian.Uint64(data[16:24])
	body := data[packedHeader:]
	if chunkSize > uint64(len(body)/size) {
		return nil, errors.Errorf("%s: truncated, want %d tokens", name, chunkSize)
	}
	tokens := make([]int, int(chunkSize))
	for i := range tokens {
		b := body[i*size:]
		switch code {
		case DtypeUint8:
			tokens[i] = int(b[0])
		case DtypeInt8:
			tokens[i] = int(int8(b[0]))
		case DtypeInt16:
			tokens[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case DtypeUint16:
			tokens[i] = int(binary.LittleEndian.Uint16(b))
		case DtypeInt32:
			tokens[i] = int(int32(binary.LittleEndian.Uint32(b)))
		case DtypeInt64:
			tokens[i] = int(int64(binary.LittleEndian.Uint64(b)))
		}
	}
	return tokens, nil
}
