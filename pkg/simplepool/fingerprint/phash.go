package fingerprint

import (
	"bytes"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/disintegration/imaging"
)

// The image fingerprint is a 64-bit DCT perceptual hash: the image is
// downsampled to a 32x32 grayscale grid (scale and format invariance), a
// 2-D DCT-II concentrates structure into the low-frequency corner, the
// top-left 8x8 coefficient block is binarized against its median, and the
// resulting bits are encoded as 16 hex characters. Thresholds are tuned to
// this transform and do not carry over to wavelet variants.
const (
	hashGridSize  = 32
	hashBlockSize = 8
	hashBits      = hashBlockSize * hashBlockSize
)

// ImageHash computes the 16-hex-character perceptual fingerprint of an
// encoded image.
func ImageHash(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	gray := imaging.Resize(imaging.Grayscale(img), hashGridSize, hashGridSize, imaging.Lanczos)

	grid := make([][]float64, hashGridSize)
	for y := 0; y < hashGridSize; y++ {
		grid[y] = make([]float64, hashGridSize)
		for x := 0; x < hashGridSize; x++ {
			grid[y][x] = float64(gray.NRGBAAt(x, y).R)
		}
	}

	coeffs := dct2d(grid)

	block := make([]float64, 0, hashBits)
	for y := 0; y < hashBlockSize; y++ {
		for x := 0; x < hashBlockSize; x++ {
			block = append(block, coeffs[y][x])
		}
	}
	med := median(block)

	var h uint64
	for i, c := range block {
		if c > med {
			h |= 1 << (hashBits - 1 - i)
		}
	}
	return fmt.Sprintf("%016x", h), nil
}

// Similarity maps the Hamming distance between two equal-length
// fingerprints into [0, 1], 1 meaning identical.
func Similarity(a, b string) float64 {
	return float64(hashBits-hammingDistance(a, b)) / float64(hashBits)
}

// hammingDistance counts differing bits between two hex fingerprints.
// Unequal lengths are a programming error, not recoverable data.
func hammingDistance(a, b string) int {
	if len(a) != len(b) {
		panic(fmt.Sprintf("fingerprint length mismatch: %d vs %d", len(a), len(b)))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		dist += bits.OnesCount8(hexNibble(a[i]) ^ hexNibble(b[i]))
	}
	return dist
}

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		panic(fmt.Sprintf("invalid fingerprint character %q", c))
	}
}

// dct2d applies a separable DCT-II over rows, then columns.
func dct2d(grid [][]float64) [][]float64 {
	n := len(grid)
	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = dct1d(grid[y])
	}
	out := make([][]float64, n)
	for y := 0; y < n; y++ {
		out[y] = make([]float64, n)
	}
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = rows[y][x]
		}
		transformed := dct1d(col)
		for y := 0; y < n; y++ {
			out[y][x] = transformed[y]
		}
	}
	return out
}

func dct1d(v []float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += v[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		out[k] = sum
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
