package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradientImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return encodePNG(t, img)
}

func checkerImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{A: 255}
			if (x/8+y/8)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func TestImageHashDeterministic(t *testing.T) {
	data := gradientImage(t)

	h1, err := ImageHash(data)
	require.NoError(t, err)
	h2, err := ImageHash(data)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identical bytes must hash identically")
	assert.Len(t, h1, 16)
	assert.Equal(t, 1.0, Similarity(h1, h2))
}

func TestImageHashDistinguishesContent(t *testing.T) {
	h1, err := ImageHash(gradientImage(t))
	require.NoError(t, err)
	h2, err := ImageHash(checkerImage(t))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Less(t, Similarity(h1, h2), 1.0)
}

// patternImage draws disks and stripes in normalized coordinates so
// renditions at different sizes depict the same picture. The scale
// invariance fixture needs this broad spectral content: a bare gradient
// leaves most DCT coefficients near zero and the binarized bits unstable
// under resampling.
func patternImage(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			fx := float64(x) / float64(size)
			fy := float64(y) / float64(size)
			c := color.RGBA{A: 255}
			switch {
			case (fx-0.3)*(fx-0.3)+(fy-0.3)*(fy-0.3) < 0.04:
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			case (fx-0.75)*(fx-0.75)+(fy-0.4)*(fy-0.4) < 0.02:
				c = color.RGBA{R: 180, G: 180, B: 180, A: 255}
			case fy > 0.65 && int(fx*8)%2 == 0:
				c = color.RGBA{R: 220, G: 220, B: 220, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func TestImageHashScaleInvariance(t *testing.T) {
	h1, err := ImageHash(patternImage(t, 256))
	require.NoError(t, err)
	h2, err := ImageHash(patternImage(t, 64))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, Similarity(h1, h2), 0.85, "a downscaled rendition should stay close")
}

func TestImageHashRejectsGarbage(t *testing.T) {
	_, err := ImageHash([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestSimilarityInvertedFingerprint(t *testing.T) {
	h := "0123456789abcdef"
	inverted := make([]byte, len(h))
	for i := 0; i < len(h); i++ {
		inverted[i] = "0123456789abcdef"[15-hexNibble(h[i])]
	}
	assert.Equal(t, 0.0, Similarity(h, string(inverted)), "all bits flipped means similarity zero")
}

func TestSimilarityLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		Similarity("abcd", "abcdef")
	})
}

func TestHammingDistanceCounts(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("0000000000000000", "0000000000000000"))
	// One nibble differing in all four bits: 60/64 bits agree.
	assert.InDelta(t, 60.0/64.0, Similarity("0000000000000000", "f000000000000000"), 1e-9)
}
