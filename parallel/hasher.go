package parallel

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const fingerprintBlock = 1 << 14

// Fingerprint returns a digest of the exact bit patterns of params. Blocks
// are hashed concurrently and the block digests hashed in order, so the
// result does not depend on the number of goroutines.
func Fingerprint(params []float64, limit int) (ret [32]byte) {
	blocks := (len(params) + fingerprintBlock - 1) / fingerprintBlock
	sums := make([][32]byte, blocks)
	ForEach(blocks, limit, func(i int) {
		lo := i * fingerprintBlock
		hi := min(lo+fingerprintBlock, len(params))
		buf := make([]byte, 8*(hi-lo))
		for j, v := range params[lo:hi] {
			binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
		}
		sums[i] = sha256.Sum256(buf)
	})
	sha := sha256.New()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(params)))
	sha.Write(n[:])
	for i := range sums {
		sha.Write(sums[i][:])
	}
	copy(ret[:], sha.Sum(nil))
	return
}
