//go:build !linux || !cgo

package pipewire

import "go2tv.app/acapture/internal/framequeue"

type Stream struct{}

func IsAvailable() bool {
	return false
}

func NewStream(fd int, node uint32, width, height, fps uint32, queue *framequeue.Queue) (*Stream, error) {
	return nil, ErrLibraryNotLoaded
}

func (s *Stream) Start() {}

func (s *Stream) Stop() {}

func (s *Stream) Size() (width, height uint32) { return 0, 0 }

func (s *Stream) Close() error {
	return nil
}
