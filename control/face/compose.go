package face

// BlendFunc combines a layer's pixel (src) with what is already in the buffer (dst).
type BlendFunc func(dst, src RGB) RGB

// Over draws src on top of dst.  Black source pixels are transparent.
func Over(dst, src RGB) RGB {
	if src.IsBlack() {
		return dst
	}
	return src
}

// Add sums the channels, saturating at 255.  Two arcs drawn with Add stay visible where they
// overlap.
func Add(dst, src RGB) RGB {
	return RGB{R: add8(dst.R, src.R), G: add8(dst.G, src.G), B: add8(dst.B, src.B)}
}

func add8(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > 0xff {
		return 0xff
	}
	return uint8(s)
}

// Spot is one lit position in a layer.
type Spot struct {
	Pos   int
	Color RGB
}

// Layer is one entry in a draw list.
type Layer struct {
	Name  string
	Blend BlendFunc
	Spots []Spot
}

// Compose draws layers in order into a fresh, all-black buffer.  Later layers are on top.
func Compose(layers ...Layer) PixelBuffer {
	var buf PixelBuffer
	for _, l := range layers {
		blend := l.Blend
		if blend == nil {
			blend = Over
		}
		for _, s := range l.Spots {
			i := Wrap(s.Pos)
			buf[i] = blend(buf[i], s.Color)
		}
	}
	return buf
}

// arc returns length spots starting at 12 o'clock and running clockwise.
func arc(length int, c RGB) []Spot {
	if length > Pixels {
		length = Pixels
	}
	var spots []Spot
	for i := 0; i < length; i++ {
		spots = append(spots, Spot{Pos: i, Color: c})
	}
	return spots
}
