// Package rand generates reproducible workloads for tests and benchmarks
package rand

import (
	"bytes"
	"math/rand"
	"sync"
)

// adds "a" to pad over 256 locations (0-9 U a-z makes up to 252 only and we want to cover the range of uint8),
// so "a" is slightly more frequent than other signs. The trade-off here is speed over exact randomness
var letters = bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz0123456789a"), 7)

// Generator produces the same data for the same seed. It is safe for concurrent use.
type Generator struct {
	mx   sync.Mutex
	rgen *rand.Rand
}

// New generator from a seed
func New(seed int64) *Generator {
	return &Generator{
		rgen: rand.New(rand.NewSource(seed)), // #nosec
	}
}

// Bytes returns a random slice of bytes
func (g *Generator) Bytes(n int) []byte {
	buf := make([]byte, n)
	g.mx.Lock()
	_, _ = g.rgen.Read(buf)
	g.mx.Unlock()
	return buf
}

// LetterBytes returns a random slice of bytes picked in the [0-9]|[a-z] range
func (g *Generator) LetterBytes(n int) []byte {
	buf := g.Bytes(n)
	for i, b := range buf {
		buf[i] = letters[b]
	}
	return buf
}

// LetterString returns a random string picked in the [0-9]|[a-z] range
func (g *Generator) LetterString(n int) string {
	return string(g.LetterBytes(n))
}

// Keys returns n distinct keys in random order, spaced by step from step
func (g *Generator) Keys(n int, step uint64) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i+1) * step
	}
	g.mx.Lock()
	g.rgen.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	g.mx.Unlock()
	return keys
}

// Size returns a size in [min, max]
func (g *Generator) Size(min, max int) int {
	if max <= min {
		return min
	}
	g.mx.Lock()
	defer g.mx.Unlock()
	return min + g.rgen.Intn(max-min+1)
}
