package face

// Pixels is the number of LEDs on the ring.
const Pixels = 60

// PixelBuffer is one frame for the ring.  Index 0 is the LED at 12 o'clock and indices increase
// clockwise, 6 degrees apart.  A zero PixelBuffer is all black.
type PixelBuffer [Pixels]RGB

// Wrap maps any integer onto a ring position.
func Wrap(pos int) int {
	return ((pos % Pixels) + Pixels) % Pixels
}

// PositionForAngle returns the ring position for an angle in degrees clockwise from 12 o'clock.
func PositionForAngle(deg float64) int {
	p := deg / 6
	if p < 0 {
		p -= 0.5
	} else {
		p += 0.5
	}
	return Wrap(int(p))
}

// Lit returns the positions that are not black, in ring order.
func (b *PixelBuffer) Lit() []int {
	var result []int
	for i, c := range b {
		if !c.IsBlack() {
			result = append(result, i)
		}
	}
	return result
}

// Bytes returns the frame as packed R, G, B bytes, 3 per pixel.
func (b *PixelBuffer) Bytes() []byte {
	result := make([]byte, 0, 3*Pixels)
	for _, c := range b {
		result = append(result, c.R, c.G, c.B)
	}
	return result
}
