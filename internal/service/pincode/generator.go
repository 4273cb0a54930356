package pincode

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Alphabet holds the characters an access code is drawn from.
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength = 6

	// largest multiple of len(Alphabet) that fits in a byte
	rejectAbove = 252
)

// Generator draws uniformly random codes from Alphabet.
type Generator struct {
	src io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{src: rand.Reader}
}

// NewGeneratorFrom uses src as the entropy source.
func NewGeneratorFrom(src io.Reader) *Generator {
	return &Generator{src: src}
}

// Generate returns a code of the given length. Non-positive length uses DefaultLength.
func (g *Generator) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
