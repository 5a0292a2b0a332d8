package face

// Wheel maps 0-255 onto a color wheel running red, green, blue and back to red.
func Wheel(pos uint8) RGB {
	p := 255 - int(pos)
	switch {
	case p < 85:
		return RGB{R: uint8(255 - p*3), B: uint8(p * 3)}
	case p < 170:
		p -= 85
		return RGB{G: uint8(p * 3), B: uint8(255 - p*3)}
	default:
		p -= 170
		return RGB{R: uint8(p * 3), G: uint8(255 - p*3)}
	}
}

// ColorWipe lights the ring one position at a time, clockwise from 12 o'clock.  It returns one
// frame per pixel; the last frame is the whole ring in c.
func ColorWipe(c RGB) []PixelBuffer {
	frames := make([]PixelBuffer, Pixels)
	var buf PixelBuffer
	for i := 0; i < Pixels; i++ {
		buf[i] = c
		frames[i] = buf
	}
	return frames
}

// BlackWipe turns the pixels of from off one at a time, clockwise.  The last frame is all
// black.
func BlackWipe(from PixelBuffer) []PixelBuffer {
	frames := make([]PixelBuffer, Pixels)
	buf := from
	for i := 0; i < Pixels; i++ {
		buf[i] = Black
		frames[i] = buf
	}
	return frames
}

// RainbowCycle spreads the whole color wheel around the ring and rotates it once over n frames.
func RainbowCycle(n int) []PixelBuffer {
	if n <= 0 {
		return nil
	}
	frames := make([]PixelBuffer, n)
	for j := range frames {
		offset := j * 256 / n
		for i := 0; i < Pixels; i++ {
			frames[j][i] = Wheel(uint8((i*256/Pixels + offset) & 0xff))
		}
	}
	return frames
}
