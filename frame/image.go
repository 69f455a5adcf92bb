package frame

// Channels is the number of samples per pixel in an ImageArray (B, G, R).
const Channels = 3

// ImageArray is a [height, width, 3] view over a frame buffer.
//
// Element (r, c, k) lives at Data[r*Strides[0] + c*Strides[1] + k*Strides[2]].
// Data aliases the source RawFrame buffer; nothing is copied.
type ImageArray struct {
	Shape   [3]int
	Strides [3]int
	Data    []byte
}

func (a ImageArray) Height() int   { return a.Shape[0] }
func (a ImageArray) Width() int    { return a.Shape[1] }
func (a ImageArray) Channels() int { return a.Shape[2] }

// Len is the number of addressable samples.
func (a ImageArray) Len() int {
	return a.Shape[0] * a.Shape[1] * a.Shape[2]
}

// At returns the sample at row r, column c, channel k (0=B, 1=G, 2=R).
// It panics on out-of-range indices like a slice access would.
func (a ImageArray) At(r, c, k int) uint8 {
	if r < 0 || r >= a.Shape[0] || c < 0 || c >= a.Shape[1] || k < 0 || k >= a.Shape[2] {
		panic("frame: ImageArray index out of range")
	}
	return a.Data[a.offset(r, c, k)]
}

func (a ImageArray) offset(r, c, k int) int {
	return r*a.Strides[0] + c*a.Strides[1] + k*a.Strides[2]
}

// Pack copies the view into a new contiguous HWC buffer of Len() bytes.
func (a ImageArray) Pack() []byte {
	out := make([]byte, a.Len())
	i := 0
	for r := 0; r < a.Shape[0]; r++ {
		for c := 0; c < a.Shape[1]; c++ {
			base := a.offset(r, c, 0)
			for k := 0; k < a.Shape[2]; k++ {
				out[i] = a.Data[base+k*a.Strides[2]]
				i++
			}
		}
	}
	return out
}
