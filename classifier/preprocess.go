package classifier

import (
	"image"

	"github.com/nfnt/resize"
)

// NewPreprocessing resizes to a size x size square and emits normalized CHW floats:
// (v/255 - mean) / std per channel.
func NewPreprocessing(size int, mean, std [3]float32) Preprocessing {
	return func(img image.Image) []float32 {
		resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
		bounds := resized.Bounds()
		plane := size * size
		input := make([]float32, 3*plane)

		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				i := y*size + x
				input[i] = (float32(r>>8)/255 - mean[0]) / std[0]
				input[plane+i] = (float32(g>>8)/255 - mean[1]) / std[1]
				input[2*plane+i] = (float32(b>>8)/255 - mean[2]) / std[2]
			}
		}
		return input
	}
}
