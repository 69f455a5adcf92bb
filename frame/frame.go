package frame

import (
	"errors"
	"fmt"
)

// PixelFormat tags the byte layout of a RawFrame.
type PixelFormat string

const (
	// PixelFormatBGRA is 4 bytes per pixel, blue first, alpha last.
	PixelFormatBGRA PixelFormat = "BGRA"
	PixelFormatBGRx PixelFormat = "BGRx"
	PixelFormatRGBx PixelFormat = "RGBx"
	PixelFormatXBGR PixelFormat = "XBGR"
	PixelFormatRGB  PixelFormat = "RGB"
	PixelFormatNV12 PixelFormat = "NV12"
)

const bytesPerPixelBGRA = 4

var (
	ErrUnsupportedFrameFormat = errors.New("unsupported frame format")
	ErrShape                  = errors.New("frame buffer does not match shape and strides")
)

// RawFrame is one backend-delivered frame before channel reinterpretation.
type RawFrame struct {
	Format PixelFormat
	Width  uint32
	Height uint32
	// Stride is the byte distance between rows. Zero means Width*4.
	Stride int
	// DisplayTime is the backend presentation timestamp in nanoseconds.
	DisplayTime uint64
	Data        []byte
}

// RowStride returns the effective row stride in bytes.
func (f RawFrame) RowStride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return int(f.Width) * bytesPerPixelBGRA
}

func (f RawFrame) String() string {
	return fmt.Sprintf("%s frame %dx%d stride=%d time=%d bytes=%d",
		f.Format, f.Width, f.Height, f.RowStride(), f.DisplayTime, len(f.Data))
}
