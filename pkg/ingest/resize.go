package ingest

import "github.com/ndimixer/mixer/pkg/frame"

// Resize pre-resizes src to outW x outH using nearest-neighbour sampling,
// the cheapest option the spec allows at ingest (bilinear is permitted but
// not required). A no-op when dimensions already match.
func Resize(src frame.Frame, outW, outH int) frame.Frame {
	if src.Width == outW && src.Height == outH {
		return src
	}

	out := frame.NewFrame(outW, outH, src.Format)
	bpp := bytesPerPixel(src.Format)

	for y := 0; y < outH; y++ {
		srcY := y * src.Height / outH
		srcRow := src.Pix[srcY*src.Stride:]
		dstRow := out.Pix[y*out.Stride:]
		for x := 0; x < outW; x++ {
			srcX := x * src.Width / outW
			copy(dstRow[x*bpp:x*bpp+bpp], srcRow[srcX*bpp:srcX*bpp+bpp])
		}
	}
	return out
}

func bytesPerPixel(f frame.Format) int {
	switch f {
	case frame.FormatBGRA8, frame.FormatRGBA8Straight, frame.FormatRGBA8Premultiplied:
		return 4
	default:
		return 4
	}
}
