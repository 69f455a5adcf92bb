package frame

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func bgraFrame(width, height uint32) RawFrame {
	data := make([]byte, int(width*height)*4)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return RawFrame{
		Format:      PixelFormatBGRA,
		Width:       width,
		Height:      height,
		DisplayTime: 42,
		Data:        data,
	}
}

func TestConvertBGRAShapeAndStrides(t *testing.T) {
	f := bgraFrame(5, 3)

	img, err := Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if img.Shape != [3]int{3, 5, 3} {
		t.Fatalf("shape = %v, want [3 5 3]", img.Shape)
	}
	if img.Strides != [3]int{5 * 4, 4, 1} {
		t.Fatalf("strides = %v, want [20 4 1]", img.Strides)
	}
	if img.Height() != 3 || img.Width() != 5 || img.Channels() != 3 {
		t.Fatalf("accessors = %d,%d,%d", img.Height(), img.Width(), img.Channels())
	}
}

func TestConvertSamplesMatchSourceOffsets(t *testing.T) {
	const w, h = 7, 4
	f := bgraFrame(w, h)

	img, err := Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			for k := 0; k < 3; k++ {
				want := f.Data[r*(w*4)+c*4+k]
				if got := img.At(r, c, k); got != want {
					t.Fatalf("At(%d,%d,%d) = %d, want %d", r, c, k, got, want)
				}
			}
		}
	}
}

func TestConvertIsAViewNotACopy(t *testing.T) {
	f := bgraFrame(2, 2)
	img, err := Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	f.Data[4+1] = 0xAB // pixel (0,1) green
	if got := img.At(0, 1, 1); got != 0xAB {
		t.Fatalf("view did not observe source write, got %#x", got)
	}
}

func TestConvertIsRepeatable(t *testing.T) {
	f := bgraFrame(6, 5)

	a, err := Convert(f)
	if err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	b, err := Convert(f)
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if a.Shape != b.Shape || a.Strides != b.Strides {
		t.Fatalf("geometry differs: %v/%v vs %v/%v", a.Shape, a.Strides, b.Shape, b.Strides)
	}
	if !bytes.Equal(a.Pack(), b.Pack()) {
		t.Fatal("sampled bytes differ between conversions")
	}
}

func TestConvertPaddedRows(t *testing.T) {
	const w, h, stride = 3, 2, 16
	data := make([]byte, stride*h)
	for i := range data {
		data[i] = byte(i)
	}
	f := RawFrame{Format: PixelFormatBGRA, Width: w, Height: h, Stride: stride, Data: data}

	img, err := Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if img.Strides[0] != stride {
		t.Fatalf("row stride = %d, want %d", img.Strides[0], stride)
	}
	if got := img.At(1, 2, 2); got != data[stride+2*4+2] {
		t.Fatalf("At(1,2,2) = %d, want %d", got, data[stride+2*4+2])
	}
}

func TestConvertRejectsOtherFormats(t *testing.T) {
	formats := []PixelFormat{PixelFormatBGRx, PixelFormatRGBx, PixelFormatXBGR, PixelFormatRGB, PixelFormatNV12, ""}
	for _, format := range formats {
		f := bgraFrame(2, 2)
		f.Format = format

		img, err := Convert(f)
		if !errors.Is(err, ErrUnsupportedFrameFormat) {
			t.Fatalf("format %q: err = %v, want ErrUnsupportedFrameFormat", format, err)
		}
		if img.Data != nil || img.Len() != 0 {
			t.Fatalf("format %q: produced an array %v", format, img.Shape)
		}
		if format != "" && !strings.Contains(err.Error(), string(format)) {
			t.Fatalf("format %q: error %q does not describe the frame", format, err)
		}
	}
}

func TestConvertShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame RawFrame
	}{
		{
			name:  "short buffer",
			frame: RawFrame{Format: PixelFormatBGRA, Width: 4, Height: 4, Data: make([]byte, 4*4*4-2)},
		},
		{
			name:  "stride narrower than row",
			frame: RawFrame{Format: PixelFormatBGRA, Width: 4, Height: 2, Stride: 8, Data: make([]byte, 64)},
		},
		{
			name:  "missing last row",
			frame: RawFrame{Format: PixelFormatBGRA, Width: 2, Height: 3, Data: make([]byte, 2*4*2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Convert(tt.frame); !errors.Is(err, ErrShape) {
				t.Fatalf("err = %v, want ErrShape", err)
			}
		})
	}
}

func TestConvertAcceptsBufferWithoutTrailingAlpha(t *testing.T) {
	// The last pixel's alpha byte is never addressed.
	f := RawFrame{Format: PixelFormatBGRA, Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6, 7}}

	img, err := Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := img.Pack(); !bytes.Equal(got, []byte{1, 2, 3, 5, 6, 7}) {
		t.Fatalf("Pack = %v", got)
	}
}

func TestConvertEmptyFrame(t *testing.T) {
	img, err := Convert(RawFrame{Format: PixelFormatBGRA})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if img.Len() != 0 {
		t.Fatalf("Len = %d, want 0", img.Len())
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	img, err := Convert(bgraFrame(1, 1))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for channel 3")
		}
	}()
	img.At(0, 0, 3)
}
