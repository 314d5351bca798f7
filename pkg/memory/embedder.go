// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of NewHashEmbedder(0).
const DefaultHashDimensions = 256

// HashEmbedder embeds text by feature hashing its lowercase word tokens.
// It needs no model and is deterministic, so identical wording maps to
// identical vectors while unrelated wording lands far apart.
type HashEmbedder struct {
	dims int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder returns a hashing embedder producing dims-sized vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed returns the normalized hashed bag of words of text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		// The top bit picks the sign so collisions tend to cancel out.
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return Normalize(vec), nil
}

// Normalize scales vec to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// SquaredL2 returns the squared Euclidean distance between a and b.
// Missing trailing components count as zero.
func SquaredL2(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var d float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		d += (x - y) * (x - y)
	}
	return d
}
