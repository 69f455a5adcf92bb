package pipewire

import "errors"

var ErrLibraryNotLoaded = errors.New("libpipewire-0.3.so.0 could not be loaded")

// opaqueAlpha sets the padding byte of every BGRx pixel to 0xFF, turning the
// rows of buf into valid BGRA. Bytes past width*4 in each row are left alone.
func opaqueAlpha(buf []byte, stride, width, height int) {
	for y := 0; y < height; y++ {
		start := y * stride
		end := start + width*4
		if end > len(buf) {
			end = len(buf) - (len(buf)-start)%4
		}
		for i := start + 3; i < end; i += 4 {
			buf[i] = 0xFF
		}
	}
}

// flipRows reverses the order of the height rows of buf in place, turning a
// bottom-up image into a top-down one. It reports false, leaving buf alone,
// when buf is too short to hold every row.
func flipRows(buf []byte, stride, height int) bool {
	if stride <= 0 || height < 0 || len(buf) < stride*height {
		return false
	}
	tmp := make([]byte, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := buf[top*stride : (top+1)*stride]
		b := buf[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
	return true
}
