package compositor

// RGBA is a single pixel in normalized [0,1] floating point, used only as
// the numeric reference for the blend law and in tests that check backend
// equivalence. Neither backend operates on this type in its hot path.
type RGBA struct {
	R, G, B, A float64
}

// BlendPixel is the reference implementation of Porter-Duff "source over"
// with a layer opacity multiplier, per spec:
//
//	sa      = layer.a * opacity
//	out_a   = sa + canvas.a*(1-sa)
//	out_rgb = (layer.rgb*sa + canvas.rgb*canvas.a*(1-sa)) / out_a   if out_a > 0
//	        = (0,0,0)                                               otherwise
//
// with short-circuits for sa == 0 (canvas unchanged) and sa == 1
// (canvas := layer.rgb, 1). Every backend must reproduce this function's
// output within 1/255 per channel.
func BlendPixel(canvas, layer RGBA, opacity float64) RGBA {
	sa := layer.A * opacity

	if sa <= 0 {
		return canvas
	}
	if sa >= 1 {
		return RGBA{R: layer.R, G: layer.G, B: layer.B, A: 1}
	}

	outA := sa + canvas.A*(1-sa)
	if outA <= 0 {
		return RGBA{0, 0, 0, 0}
	}

	out := RGBA{A: outA}
	out.R = (layer.R*sa + canvas.R*canvas.A*(1-sa)) / outA
	out.G = (layer.G*sa + canvas.G*canvas.A*(1-sa)) / outA
	out.B = (layer.B*sa + canvas.B*canvas.A*(1-sa)) / outA
	return out
}
