//go:build linux && cgo

// Package pipewire consumes a single raw video stream from a PipeWire remote.
// libpipewire is loaded at runtime, so binaries built with this package still
// start on systems without it.
package pipewire

/*
#cgo pkg-config: libpipewire-0.3
#cgo LDFLAGS: -ldl
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <stdlib.h>
#include <string.h>
#include <dlfcn.h>

static void (*d_pw_init)(int *argc, char **argv[]);
static struct pw_main_loop * (*d_pw_main_loop_new)(const struct spa_dict *props);
static struct pw_loop * (*d_pw_main_loop_get_loop)(struct pw_main_loop *loop);
static int (*d_pw_main_loop_quit)(struct pw_main_loop *loop);
static int (*d_pw_main_loop_run)(struct pw_main_loop *loop);
static void (*d_pw_main_loop_destroy)(struct pw_main_loop *loop);
static struct pw_context * (*d_pw_context_new)(struct pw_loop *main_loop, struct pw_properties *props, size_t user_data_size);
static void (*d_pw_context_destroy)(struct pw_context *context);
static struct pw_core * (*d_pw_context_connect_fd)(struct pw_context *context, int fd, struct pw_properties *properties, size_t user_data_size);
static int (*d_pw_core_disconnect)(struct pw_core *core);
static struct pw_properties * (*d_pw_properties_new)(const char *key, ...);
static struct pw_stream * (*d_pw_stream_new)(struct pw_core *core, const char *name, struct pw_properties *props);
static void (*d_pw_stream_add_listener)(struct pw_stream *stream, struct spa_hook *listener, const struct pw_stream_events *events, void *data);
static int (*d_pw_stream_connect)(struct pw_stream *stream, enum pw_direction direction, uint32_t target_id, enum pw_stream_flags flags, const struct spa_pod **params, uint32_t n_params);
static struct pw_buffer * (*d_pw_stream_dequeue_buffer)(struct pw_stream *stream);
static int (*d_pw_stream_queue_buffer)(struct pw_stream *stream, struct pw_buffer *buffer);
static void (*d_pw_stream_destroy)(struct pw_stream *stream);

static void* pw_lib_handle = NULL;

static int load_pipewire() {
    if (pw_lib_handle != NULL) return 1;

    const char* lib_names[] = {
        "libpipewire-0.3.so.0",
        "libpipewire-0.3.so",
        NULL
    };

    for (int i = 0; lib_names[i] != NULL; i++) {
        pw_lib_handle = dlopen(lib_names[i], RTLD_NOW);
        if (pw_lib_handle) break;
    }
    if (!pw_lib_handle) return 0;

    d_pw_init = dlsym(pw_lib_handle, "pw_init");
    d_pw_main_loop_new = dlsym(pw_lib_handle, "pw_main_loop_new");
    d_pw_main_loop_get_loop = dlsym(pw_lib_handle, "pw_main_loop_get_loop");
    d_pw_main_loop_quit = dlsym(pw_lib_handle, "pw_main_loop_quit");
    d_pw_main_loop_run = dlsym(pw_lib_handle, "pw_main_loop_run");
    d_pw_main_loop_destroy = dlsym(pw_lib_handle, "pw_main_loop_destroy");
    d_pw_context_new = dlsym(pw_lib_handle, "pw_context_new");
    d_pw_context_destroy = dlsym(pw_lib_handle, "pw_context_destroy");
    d_pw_context_connect_fd = dlsym(pw_lib_handle, "pw_context_connect_fd");
    d_pw_core_disconnect = dlsym(pw_lib_handle, "pw_core_disconnect");
    d_pw_properties_new = dlsym(pw_lib_handle, "pw_properties_new");
    d_pw_stream_new = dlsym(pw_lib_handle, "pw_stream_new");
    d_pw_stream_add_listener = dlsym(pw_lib_handle, "pw_stream_add_listener");
    d_pw_stream_connect = dlsym(pw_lib_handle, "pw_stream_connect");
    d_pw_stream_dequeue_buffer = dlsym(pw_lib_handle, "pw_stream_dequeue_buffer");
    d_pw_stream_queue_buffer = dlsym(pw_lib_handle, "pw_stream_queue_buffer");
    d_pw_stream_destroy = dlsym(pw_lib_handle, "pw_stream_destroy");

    if (!d_pw_init || !d_pw_main_loop_new || !d_pw_context_connect_fd || !d_pw_stream_new) {
        dlclose(pw_lib_handle);
        pw_lib_handle = NULL;
        return 0;
    }
    return 1;
}

extern void on_state_changed_go(int id, enum pw_stream_state state, char *error);
extern void on_format_go(int id, uint32_t format, uint32_t width, uint32_t height);
extern void on_frame_go(int id, void *data, uint32_t size, int32_t stride);

struct go_stream_data {
    int id;
    struct pw_stream *stream;
    struct spa_hook stream_listener;
};

static void on_state_changed_c(void *userdata, enum pw_stream_state old, enum pw_stream_state state, const char *error) {
    struct go_stream_data *data = userdata;
    on_state_changed_go(data->id, state, (char*)error);
}

static void on_param_changed_c(void *userdata, uint32_t id, const struct spa_pod *param) {
    struct go_stream_data *data = userdata;
    if (param == NULL || id != SPA_PARAM_Format) return;

    uint32_t media_type, media_subtype;
    if (spa_format_parse(param, &media_type, &media_subtype) < 0) return;
    if (media_type != SPA_MEDIA_TYPE_video || media_subtype != SPA_MEDIA_SUBTYPE_raw) return;

    struct spa_video_info_raw info;
    if (spa_format_video_raw_parse(param, &info) < 0) return;
    on_format_go(data->id, info.format, info.size.width, info.size.height);
}

static void on_process_c(void *userdata) {
    struct go_stream_data *data = userdata;
    if (!data->stream) return;

    struct pw_buffer *b = d_pw_stream_dequeue_buffer(data->stream);
    if (b == NULL) return;

    struct spa_buffer *buf = b->buffer;
    struct spa_data *d = &buf->datas[0];
    if (d->data != NULL && d->chunk != NULL && d->chunk->size > 0) {
        uint32_t offset = d->chunk->offset % d->maxsize;
        uint32_t size = SPA_MIN(d->chunk->size, d->maxsize - offset);
        on_frame_go(data->id, SPA_PTROFF(d->data, offset, void), size, d->chunk->stride);
    }

    d_pw_stream_queue_buffer(data->stream, b);
}

static const struct pw_stream_events stream_events = {
    PW_VERSION_STREAM_EVENTS,
    .state_changed = on_state_changed_c,
    .param_changed = on_param_changed_c,
    .process = on_process_c,
};

static inline struct pw_stream * create_stream(struct pw_core *core, const char *name, struct go_stream_data *data) {
    struct pw_properties *props = d_pw_properties_new(
                PW_KEY_MEDIA_TYPE, "Video",
                PW_KEY_MEDIA_CATEGORY, "Capture",
                PW_KEY_MEDIA_ROLE, "Screen",
                NULL);

    struct pw_stream *stream = d_pw_stream_new(core, name, props);
    if (stream != NULL) {
        data->stream = stream;
        d_pw_stream_add_listener(stream, &data->stream_listener, &stream_events, data);
    }
    return stream;
}

static inline int connect_stream(struct pw_stream *stream, uint32_t target_id, uint32_t width, uint32_t height, uint32_t fps) {
    uint8_t buffer[1024];
    struct spa_pod_builder b = SPA_POD_BUILDER_INIT(buffer, sizeof(buffer));

    const struct spa_pod *params[1];
    params[0] = spa_pod_builder_add_object(&b,
        SPA_TYPE_OBJECT_Format, SPA_PARAM_EnumFormat,
        SPA_FORMAT_mediaType, SPA_POD_Id(SPA_MEDIA_TYPE_video),
        SPA_FORMAT_mediaSubtype, SPA_POD_Id(SPA_MEDIA_SUBTYPE_raw),
        SPA_FORMAT_VIDEO_format, SPA_POD_CHOICE_ENUM_Id(3,
            SPA_VIDEO_FORMAT_BGRA,
            SPA_VIDEO_FORMAT_BGRA,
            SPA_VIDEO_FORMAT_BGRx),
        SPA_FORMAT_VIDEO_size, SPA_POD_CHOICE_RANGE_Rectangle(
            &SPA_RECTANGLE(width, height),
            &SPA_RECTANGLE(1, 1),
            &SPA_RECTANGLE(8192, 8192)),
        SPA_FORMAT_VIDEO_framerate, SPA_POD_CHOICE_RANGE_Fraction(
            &SPA_FRACTION(fps, 1),
            &SPA_FRACTION(0, 1),
            &SPA_FRACTION(1000, 1)));

    return d_pw_stream_connect(stream,
        PW_DIRECTION_INPUT,
        target_id,
        PW_STREAM_FLAG_AUTOCONNECT |
        PW_STREAM_FLAG_MAP_BUFFERS,
        params, 1);
}

static inline void wrap_pw_init() { d_pw_init(NULL, NULL); }
static inline struct pw_main_loop * wrap_pw_main_loop_new() { return d_pw_main_loop_new(NULL); }
static inline struct pw_context * wrap_pw_context_new(struct pw_main_loop *loop) { return d_pw_context_new(d_pw_main_loop_get_loop(loop), NULL, 0); }
static inline struct pw_core * wrap_pw_context_connect_fd(struct pw_context *context, int fd) { return d_pw_context_connect_fd(context, fd, NULL, 0); }
static inline void wrap_pw_main_loop_run(struct pw_main_loop *loop) { d_pw_main_loop_run(loop); }
static inline void wrap_pw_main_loop_quit(struct pw_main_loop *loop) { d_pw_main_loop_quit(loop); }
static inline void wrap_pw_stream_destroy(struct pw_stream *stream) { d_pw_stream_destroy(stream); }
static inline void wrap_pw_core_disconnect(struct pw_core *core) { d_pw_core_disconnect(core); }
static inline void wrap_pw_context_destroy(struct pw_context *context) { d_pw_context_destroy(context); }
static inline void wrap_pw_main_loop_destroy(struct pw_main_loop *loop) { d_pw_main_loop_destroy(loop); }
*/
import "C"
import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/framequeue"
	"go2tv.app/acapture/internal/logging"
)

var log = logging.L("pipewire")

// Stream is a video stream connected to one PipeWire node. Frames land in
// the queue passed to NewStream while the stream is started.
type Stream struct {
	loop    *C.struct_pw_main_loop
	context *C.struct_pw_context
	core    *C.struct_pw_core
	cData   *C.struct_go_stream_data

	id    int
	queue *framequeue.Queue

	fmtMu  sync.Mutex
	format frame.PixelFormat
	width  uint32
	height uint32

	runMu   sync.Mutex
	running bool
	wg      sync.WaitGroup

	closeOnce sync.Once
}

var (
	streamsMu sync.Mutex
	streams   = make(map[int]*Stream)
	nextID    = 1
	libLoaded bool
	libMu     sync.Mutex
)

// IsAvailable checks if the PipeWire C library can be loaded.
func IsAvailable() bool {
	libMu.Lock()
	defer libMu.Unlock()
	if libLoaded {
		return true
	}
	if C.load_pipewire() == 1 {
		libLoaded = true
		C.wrap_pw_init()
		return true
	}
	return false
}

// NewStream connects to node on the remote behind fd. The fd is duplicated;
// the caller keeps ownership of the original. width and height seed the
// format negotiation and are replaced by whatever the compositor settles on.
func NewStream(fd int, node uint32, width, height, fps uint32, queue *framequeue.Queue) (*Stream, error) {
	if !IsAvailable() {
		return nil, ErrLibraryNotLoaded
	}

	s := &Stream{
		queue:  queue,
		width:  width,
		height: height,
	}

	streamsMu.Lock()
	s.id = nextID
	nextID++
	streamsMu.Unlock()

	// pw_context_connect_fd takes ownership of the descriptor it is given.
	dupFd, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("dup fd: %w", err)
	}
	defer func() {
		if dupFd >= 0 {
			_ = unix.Close(dupFd)
		}
	}()

	cleanupOnError := func(err error) (*Stream, error) {
		_ = s.Close()
		return nil, err
	}

	s.loop = C.wrap_pw_main_loop_new()
	if s.loop == nil {
		return cleanupOnError(fmt.Errorf("failed to create main loop"))
	}

	s.context = C.wrap_pw_context_new(s.loop)
	if s.context == nil {
		return cleanupOnError(fmt.Errorf("failed to create context"))
	}

	s.core = C.wrap_pw_context_connect_fd(s.context, C.int(dupFd))
	if s.core == nil {
		return cleanupOnError(fmt.Errorf("failed to connect fd"))
	}
	dupFd = -1

	name := C.CString("acapture")
	defer C.free(unsafe.Pointer(name))

	s.cData = (*C.struct_go_stream_data)(C.malloc(C.sizeof_struct_go_stream_data))
	s.cData.id = C.int(s.id)
	s.cData.stream = nil

	// Register before connecting so the first param_changed is not lost.
	streamsMu.Lock()
	streams[s.id] = s
	streamsMu.Unlock()

	stream := C.create_stream(s.core, name, s.cData)
	if stream == nil {
		return cleanupOnError(fmt.Errorf("failed to create stream"))
	}
	s.cData.stream = stream

	res := C.connect_stream(stream, C.uint32_t(node), C.uint32_t(width), C.uint32_t(height), C.uint32_t(fps))
	if res < 0 {
		return cleanupOnError(fmt.Errorf("failed to connect stream: %d", int(res)))
	}

	log.Debug("stream connected", zap.Uint32("node", node), zap.Uint32(logging.KeyFrameRate, fps))
	return s, nil
}

// Start runs the stream's main loop. Starting a running stream is a no-op.
func (s *Stream) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running || s.loop == nil {
		return
	}
	s.running = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		C.wrap_pw_main_loop_run(s.loop)
	}()
}

// Stop quits the main loop and waits for it to return. The stream can be
// started again afterwards.
func (s *Stream) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	C.wrap_pw_main_loop_quit(s.loop)
	s.wg.Wait()
	s.running = false
}

// Size is the negotiated frame size, or the requested one before
// negotiation completes.
func (s *Stream) Size() (width, height uint32) {
	s.fmtMu.Lock()
	defer s.fmtMu.Unlock()
	return s.width, s.height
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()

		streamsMu.Lock()
		delete(streams, s.id)
		streamsMu.Unlock()

		if s.cData != nil {
			if s.cData.stream != nil {
				C.wrap_pw_stream_destroy(s.cData.stream)
			}
			C.free(unsafe.Pointer(s.cData))
			s.cData = nil
		}
		if s.core != nil {
			C.wrap_pw_core_disconnect(s.core)
			s.core = nil
		}
		if s.context != nil {
			C.wrap_pw_context_destroy(s.context)
			s.context = nil
		}
		if s.loop != nil {
			C.wrap_pw_main_loop_destroy(s.loop)
			s.loop = nil
		}
	})
	return nil
}

func lookup(id C.int) *Stream {
	streamsMu.Lock()
	defer streamsMu.Unlock()
	return streams[int(id)]
}

//export on_state_changed_go
func on_state_changed_go(id C.int, state C.enum_pw_stream_state, errMsg *C.char) {
	s := lookup(id)
	if s == nil {
		return
	}
	if state == C.PW_STREAM_STATE_ERROR {
		msg := "unknown error"
		if errMsg != nil {
			msg = C.GoString(errMsg)
		}
		log.Warn("pipewire stream error", zap.Int("stream", s.id), zap.String("error", msg))
		return
	}
	log.Debug("pipewire stream state", zap.Int("stream", s.id), zap.Int(logging.KeyState, int(state)))
}

//export on_format_go
func on_format_go(id C.int, format C.uint32_t, width, height C.uint32_t) {
	s := lookup(id)
	if s == nil {
		return
	}
	pf := pixelFormat(uint32(format))

	s.fmtMu.Lock()
	s.format = pf
	s.width = uint32(width)
	s.height = uint32(height)
	s.fmtMu.Unlock()

	log.Debug("pipewire format negotiated",
		zap.String("format", string(pf)),
		zap.Uint32(logging.KeyWidth, uint32(width)),
		zap.Uint32(logging.KeyHeight, uint32(height)),
	)
}

//export on_frame_go
func on_frame_go(id C.int, data unsafe.Pointer, size C.uint32_t, stride C.int32_t) {
	s := lookup(id)
	if s == nil {
		return
	}

	s.fmtMu.Lock()
	format, width, height := s.format, s.width, s.height
	s.fmtMu.Unlock()
	if format == "" {
		return
	}

	// A negative stride marks a bottom-up image.
	rowStride := int(stride)
	bottomUp := rowStride < 0
	if bottomUp {
		rowStride = -rowStride
	}
	if rowStride == 0 {
		rowStride = int(width) * 4
	}

	// The PipeWire buffer is recycled once this callback returns.
	buf := C.GoBytes(data, C.int(size))
	if bottomUp && !flipRows(buf, rowStride, int(height)) {
		log.Debug("dropping short bottom-up frame",
			zap.Int("stride", int(stride)),
			zap.Uint32(logging.KeyHeight, uint32(height)),
			zap.Int("size", len(buf)),
		)
		return
	}
	if format == frame.PixelFormatBGRx {
		opaqueAlpha(buf, rowStride, int(width), int(height))
		format = frame.PixelFormatBGRA
	}

	s.queue.Push(frame.RawFrame{
		Format:      format,
		Width:       width,
		Height:      height,
		Stride:      rowStride,
		DisplayTime: uint64(time.Now().UnixNano()),
		Data:        buf,
	})
}

func pixelFormat(spa uint32) frame.PixelFormat {
	switch spa {
	case C.SPA_VIDEO_FORMAT_BGRA:
		return frame.PixelFormatBGRA
	case C.SPA_VIDEO_FORMAT_BGRx:
		return frame.PixelFormatBGRx
	case C.SPA_VIDEO_FORMAT_RGBx:
		return frame.PixelFormatRGBx
	case C.SPA_VIDEO_FORMAT_xBGR:
		return frame.PixelFormatXBGR
	case C.SPA_VIDEO_FORMAT_NV12:
		return frame.PixelFormatNV12
	}
	return frame.PixelFormat(fmt.Sprintf("spa-%d", spa))
}
