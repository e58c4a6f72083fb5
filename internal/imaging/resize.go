package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// scaleToWidth returns img resized to width, keeping the aspect ratio.
// Images already at most width pixels wide are returned as-is.
func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if width <= 0 || w <= width {
		return img
	}

	nh := (h*width + w/2) / w
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// paletteLevels maps a quality to the number of levels per channel of the PNG colour cube:
// 80 keeps 5 levels (125 colours), 10 keeps 2 (8 colours).
func paletteLevels(quality int) int {
	q := clampQuality(quality)
	return 2 + q*4/100
}

// quantize maps img onto a uniform levels^3 colour cube plus one fully transparent entry.
func quantize(img image.Image, levels int) *image.Paletted {
	if levels < 2 {
		levels = 2
	}

	// value spreads the levels over 0..255 so the top level is exactly 255.
	value := func(i int) uint8 { return uint8(i * 255 / (levels - 1)) }

	pal := make(color.Palette, 0, levels*levels*levels+1)
	for r := 0; r < levels; r++ {
		for g := 0; g < levels; g++ {
			for b := 0; b < levels; b++ {
				pal = append(pal, color.NRGBA{
					R: value(r),
					G: value(g),
					B: value(b),
					A: 0xff,
				})
			}
		}
	}
	transparent := uint8(len(pal))
	pal = append(pal, color.NRGBA{})

	bounds := img.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), pal)

	level := func(v uint32) int {
		// v is 16-bit straight alpha
		return int((v*uint32(levels-1) + 0x7fff) / 0xffff)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := (y - bounds.Min.Y) * dst.Stride
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			idx := transparent
			if c.A >= 0x8000 {
				idx = uint8((level(uint32(c.R))*levels+level(uint32(c.G)))*levels + level(uint32(c.B)))
			}
			dst.Pix[row+x-bounds.Min.X] = idx
		}
	}
	return dst
}
