package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/pashuarogyam/vetai"
)

const jpegQuality = 85

// fit returns the image unchanged when the provider can read it as is, and a
// re-encoded copy otherwise. PNG stays PNG; everything else becomes JPEG.
func fit(data []byte, mimeType string) (*vetai.Image, error) {
	config, _, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// Formats Go can not decode, e.g., HEIC, are left to the provider.
		return &vetai.Image{MimeType: mimeType, Data: data}, nil
	}

	if config.Width*config.Height > MaxPixels {
		return nil, InvalidImageError{fmt.Errorf("image is larger than %d megapixels", MaxPixels/1_000_000)}
	}

	oversized := config.Width > MaxDimension || config.Height > MaxDimension
	if !oversized && passThroughTypes[mimeType] {
		return &vetai.Image{MimeType: mimeType, Data: data}, nil
	}

	decoded, _, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, InvalidImageError{fmt.Errorf("failed to decode image: %v", err)}
	}
	if oversized {
		decoded = downsample(decoded, MaxDimension)
	}

	var buffer bytes.Buffer
	if mimeType == "image/png" {
		if err := png.Encode(&buffer, decoded); err != nil {
			return nil, fmt.Errorf("failed to encode png: %v", err)
		}
		return &vetai.Image{MimeType: "image/png", Data: buffer.Bytes()}, nil
	}
	if err := jpeg.Encode(&buffer, decoded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %v", err)
	}
	return &vetai.Image{MimeType: "image/jpeg", Data: buffer.Bytes()}, nil
}

// downsample scales src so its longest side is maxDimension, keeping the
// aspect ratio.
func downsample(src stdimage.Image, maxDimension int) stdimage.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return src
	}

	var newWidth, newHeight int
	if width >= height {
		newWidth = maxDimension
		newHeight = max(1, height*maxDimension/width)
	} else {
		newHeight = maxDimension
		newWidth = max(1, width*maxDimension/height)
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
