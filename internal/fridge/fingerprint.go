package fridge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// Fingerprint policy names accepted by FingerprinterByName.
const (
	PolicyDigest  = "digest"
	PolicyAverage = "average"
)

// Fingerprinter derives a fixed-size digest from an image. Two images are
// duplicates exactly when their fingerprints are equal.
type Fingerprinter interface {
	Fingerprint(img image.Image, encoded []byte) string
}

// FingerprinterByName returns the fingerprinter for a configured policy.
func FingerprinterByName(name string) (Fingerprinter, error) {
	switch name {
	case PolicyDigest:
		return ContentDigest{}, nil
	case PolicyAverage:
		return AverageHash{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint policy %q", name)
	}
}

// ContentDigest is the SHA-256 of the canonical JPEG encoding. Only
// byte-identical re-encodes collide.
type ContentDigest struct{}

// Fingerprint implements Fingerprinter.
func (ContentDigest) Fingerprint(_ image.Image, encoded []byte) string {
	return GenerateImageHash(encoded)
}

// GenerateImageHash calculates the SHA256 hash of the image data.
func GenerateImageHash(imageData []byte) string {
	hash := sha256.Sum256(imageData)
	return hex.EncodeToString(hash[:])
}

// AverageHash is a 64-bit perceptual hash: the image is shrunk to 8x8
// grayscale and each bit records whether a pixel is brighter than the mean.
// Visually near-identical photos collide even when encoded differently.
type AverageHash struct{}

const averageHashSide = 8

// Fingerprint implements Fingerprinter.
func (AverageHash) Fingerprint(img image.Image, _ []byte) string {
	small := resize.Resize(averageHashSide, averageHashSide, img, resize.Bilinear)
	bounds := small.Bounds()

	var (
		lum [averageHashSide * averageHashSide]uint32
		sum uint64
	)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y && y-bounds.Min.Y < averageHashSide; y++ {
		for x := bounds.Min.X; x < bounds.Max.X && x-bounds.Min.X < averageHashSide; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			lum[i] = (299*r + 587*g + 114*b) / 1000
			sum += uint64(lum[i])
			i++
		}
	}
	if i == 0 {
		return fmt.Sprintf("%016x", uint64(0))
	}
	mean := sum / uint64(i)

	var bits uint64
	for j := 0; j < i; j++ {
		bits <<= 1
		if uint64(lum[j]) > mean {
			bits |= 1
		}
	}
	return fmt.Sprintf("%016x", bits)
}
