package frame

import "fmt"

// Convert reinterprets a BGRA frame as a [height, width, 3] ImageArray.
//
// The result shares f.Data. The alpha byte of every pixel is skipped by the
// pixel stride, so no samples are copied or rewritten.
func Convert(f RawFrame) (ImageArray, error) {
	if f.Format != PixelFormatBGRA {
		return ImageArray{}, fmt.Errorf("%w: received %s", ErrUnsupportedFrameFormat, f)
	}

	height := int(f.Height)
	width := int(f.Width)
	rowStride := f.RowStride()

	image := ImageArray{
		Shape:   [3]int{height, width, Channels},
		Strides: [3]int{rowStride, bytesPerPixelBGRA, 1},
		Data:    f.Data,
	}
	if err := checkBounds(image, len(f.Data)); err != nil {
		return ImageArray{}, err
	}
	return image, nil
}

func checkBounds(a ImageArray, size int) error {
	if a.Strides[0] < a.Shape[1]*a.Strides[1] {
		return fmt.Errorf("%w: row stride %d shorter than %d pixels of %d bytes",
			ErrShape, a.Strides[0], a.Shape[1], a.Strides[1])
	}
	if a.Len() == 0 {
		return nil
	}
	last := a.offset(a.Shape[0]-1, a.Shape[1]-1, a.Shape[2]-1)
	if last >= size {
		return fmt.Errorf("%w: shape %v with strides %v needs %d bytes, buffer has %d",
			ErrShape, a.Shape, a.Strides, last+1, size)
	}
	return nil
}
