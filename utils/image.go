package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported image")

// DecodeImage checks that data looks like an image before decoding it.
func DecodeImage(data []byte) (image.Image, string, error) {
	if !filetype.IsImage(data) {
		kind, _ := filetype.Match(data)
		return nil, "", fmt.Errorf("%w: content type %q", ErrUnsupportedImage, kind.MIME.Value)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// ToRGB drops the alpha channel, leaving every pixel opaque.
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return rgb
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CropResize cuts rect out of img and scales it to a size x size square.
// It returns false when rect does not overlap the image.
func CropResize(img image.Image, rect image.Rectangle, size int) (image.Image, bool) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, false
	}
	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)
	return resize.Resize(uint(size), uint(size), crop, resize.Bilinear), true
}
