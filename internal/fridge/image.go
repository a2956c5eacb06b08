// Package fridge holds the photos a user has taken of their refrigerator and
// decides which of them are duplicates.
package fridge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

// ErrUnsupportedFormat is returned for uploads that are not JPEG or PNG files.
var ErrUnsupportedFormat = errors.New("invalid file type, only JPEG, JPG, and PNG images are allowed")

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
}

// Image is a normalized photo. JPEG is the canonical encoding that is both
// fingerprinted and sent to the vision model.
type Image struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	JPEG        []byte `json:"jpeg"`
	Fingerprint string `json:"fingerprint"`
}

// Loader decodes uploads into Images.
type Loader struct {
	fingerprinter Fingerprinter
	maxWidth      uint
}

// NewLoader creates a Loader. Images wider than maxWidth are scaled down; a
// maxWidth of zero keeps the original size.
func NewLoader(fingerprinter Fingerprinter, maxWidth uint) *Loader {
	return &Loader{fingerprinter: fingerprinter, maxWidth: maxWidth}
}

// Load decodes raw upload bytes. The file name is only used to validate the
// extension and label the image.
func (l *Loader) Load(name string, data []byte) (Image, error) {
	extension := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[extension] {
		return Image{}, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image %s: %w", name, err)
	}

	return l.FromBitmap(name, img)
}

// FromBitmap normalizes an already decoded bitmap.
func (l *Loader) FromBitmap(name string, img image.Image) (Image, error) {
	if l.maxWidth > 0 && uint(img.Bounds().Dx()) > l.maxWidth {
		img = resize.Resize(l.maxWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return Image{}, fmt.Errorf("failed to encode image: %w", err)
	}
	encoded := buf.Bytes()

	bounds := img.Bounds()
	return Image{
		Name:        name,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		JPEG:        encoded,
		Fingerprint: l.fingerprinter.Fingerprint(img, encoded),
	}, nil
}
