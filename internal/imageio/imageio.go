// Package imageio decodes reference and probe images from disk.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-id/internal/facematch"
)

// Loader decodes image files. It implements facematch.ImageLoader.
type Loader struct{}

// LoadImage reads and decodes the image at path.
func (Loader) LoadImage(path string) (*facematch.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Path = path
	return img, nil
}

// Decode decodes JPEG, PNG, BMP or WebP data.
func Decode(data []byte) (*facematch.Image, error) {
	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := pixels.Bounds()
	return &facematch.Image{
		Data:   data,
		Format: format,
		Pixels: pixels,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// Downscale returns a JPEG copy of img that fits within maxSize (width and height) and the
// per-axis factors that map coordinates on the copy back to img. Images that already fit
// are returned unchanged with factors 1. Neither side of the copy is ever smaller than one pixel.
func Downscale(img *facematch.Image, maxSize int) (*facematch.Image, float64, float64, error) {
	if maxSize <= 0 || (img.Width <= maxSize && img.Height <= maxSize) {
		return img, 1, 1, nil
	}
	if img.Pixels == nil {
		return nil, 0, 0, fmt.Errorf("image %s has no decoded pixels", img.Path)
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if img.Width > img.Height {
		newWidth = maxSize
		newHeight = int(float64(img.Height) * float64(maxSize) / float64(img.Width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(img.Width) * float64(maxSize) / float64(img.Height))
	}
	newWidth = max(newWidth, 1)
	newHeight = max(newHeight, 1)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img.Pixels, img.Pixels.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}

	scaleX := float64(img.Width) / float64(newWidth)
	scaleY := float64(img.Height) / float64(newHeight)
	return &facematch.Image{
		Path:   img.Path,
		Data:   buf.Bytes(),
		Format: "jpeg",
		Pixels: resized,
		Width:  newWidth,
		Height: newHeight,
	}, scaleX, scaleY, nil
}
