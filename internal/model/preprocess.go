package model

import (
	"image"

	"github.com/nfnt/resize"
)

// Preprocess resizes img to size x size with Lanczos resampling and returns
// its RGB values as float32 in [0, 255] multiplied by scale. Alpha is
// dropped. The layout is nhwc (interleaved) or nchw (planar).
func Preprocess(img image.Image, size int, layout string, scale float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rv := float32(r>>8) * scale
			gv := float32(g>>8) * scale
			bv := float32(b>>8) * scale

			idx := y*width + x
			if layout == LayoutNCHW {
				out[idx] = rv
				out[plane+idx] = gv
				out[2*plane+idx] = bv
				continue
			}
			out[3*idx] = rv
			out[3*idx+1] = gv
			out[3*idx+2] = bv
		}
	}
	return out
}
