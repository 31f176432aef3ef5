package model

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// tensorLayout is the memory order of the model input.
type tensorLayout int

const (
	layoutNHWC tensorLayout = iota // tflite
	layoutNCHW                     // onnx
)

const channels = 3

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// fillInput crops img to a centred square, resizes it to size x size and
// writes RGB values scaled to [-1, 1] into dst.
func fillInput(dst []float32, img image.Image, size int, layout tensorLayout) error {
	if img == nil {
		return fmt.Errorf("nil image")
	}
	if want := size * size * channels; len(dst) != want {
		return fmt.Errorf("input tensor holds %d values, want %d", len(dst), want)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("empty image")
	}

	resized := resize.Resize(uint(size), uint(size), centerCrop(img), resize.Bilinear) //nolint:gosec // size validated positive
	b := resized.Bounds()
	plane := size * size

	for y := range size {
		for x := range size {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := y*size + x
			switch layout {
			case layoutNCHW:
				dst[px] = normalize(r)
				dst[plane+px] = normalize(g)
				dst[2*plane+px] = normalize(bl)
			default:
				i := px * channels
				dst[i] = normalize(r)
				dst[i+1] = normalize(g)
				dst[i+2] = normalize(bl)
			}
		}
	}
	return nil
}

// normalize maps a 16-bit colour channel to [-1, 1].
func normalize(v uint32) float32 {
	return float32(v>>8)/127.5 - 1
}

func centerCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	si, ok := img.(subImager)
	if !ok {
		return img
	}
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	return si.SubImage(image.Rect(x0, y0, x0+side, y0+side))
}
