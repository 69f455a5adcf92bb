package capture_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/capture/capturetest"
)

func openSession(t *testing.T, b *capturetest.Backend) (*capture.Session, *capturetest.Handle) {
	t.Helper()
	s, err := capture.Open(b, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	handles := b.Handles()
	return s, handles[len(handles)-1]
}

func TestOpenStartsIdle(t *testing.T) {
	s, h := openSession(t, capturetest.New())

	if got := s.State(); got != capture.Idle {
		t.Fatalf("State = %v, want idle", got)
	}
	if h.Starts() != 0 || h.Running() {
		t.Fatal("Open must not start frame production")
	}
}

func TestOpenAppliesDefaults(t *testing.T) {
	s, h := openSession(t, capturetest.New())

	want := capture.DefaultOptions()
	got := h.Options()
	if got.FrameRate != want.FrameRate || got.ShowCursor != want.ShowCursor || got.ShowHighlight != want.ShowHighlight {
		t.Fatalf("backend options = %+v, want %+v", got, want)
	}
	if got.Target != nil {
		t.Fatalf("default target = %v, want nil", got.Target)
	}
	if s.Options().FrameRate != capture.DefaultFrameRate {
		t.Fatalf("session frame rate = %d", s.Options().FrameRate)
	}
}

func TestOpenRejectsZeroFrameRate(t *testing.T) {
	_, err := capture.Open(capturetest.New(), &capture.Options{})
	if !errors.Is(err, capture.ErrInvalidOptions) {
		t.Fatalf("err = %v, want ErrInvalidOptions", err)
	}
}

func TestOpenCopiesOptions(t *testing.T) {
	b := capturetest.New()
	target := capturetest.DefaultTargets[1]
	opts := capture.DefaultOptions()
	opts.Target = &target

	s, err := capture.Open(b, &opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	target.Title = "mutated"
	opts.FrameRate = 1
	if got := s.Options(); got.Target.Title != "Terminal" || got.FrameRate != capture.DefaultFrameRate {
		t.Fatalf("session options changed with caller copy: %+v", got)
	}
}

func TestOpenPropagatesBackendError(t *testing.T) {
	b := capturetest.New()
	b.OpenErr = errors.New("pipeline setup failed")

	if _, err := capture.Open(b, nil); !errors.Is(err, b.OpenErr) {
		t.Fatalf("err = %v, want %v", err, b.OpenErr)
	}
}

func TestStartStopTransitions(t *testing.T) {
	s, h := openSession(t, capturetest.New())

	if err := s.Stop(); !errors.Is(err, capture.ErrNotRunning) {
		t.Fatalf("Stop while idle: err = %v, want ErrNotRunning", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != capture.Capturing || !h.Running() {
		t.Fatal("Start did not reach capturing")
	}
	if err := s.Start(); !errors.Is(err, capture.ErrAlreadyRunning) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyRunning", err)
	}
	if h.Starts() != 1 {
		t.Fatalf("backend starts = %d, want 1", h.Starts())
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != capture.Idle || h.Running() {
		t.Fatal("Stop did not reach idle")
	}
	if h.Stops() != 1 {
		t.Fatalf("backend stops = %d, want 1", h.Stops())
	}
}

func TestStartBackendFailureStaysIdle(t *testing.T) {
	b := capturetest.New()
	s, _ := openSession(t, b)
	b.StartErr = errors.New("permission race")

	if err := s.Start(); !errors.Is(err, b.StartErr) {
		t.Fatalf("err = %v, want %v", err, b.StartErr)
	}
	if s.State() != capture.Idle {
		t.Fatalf("State = %v after failed start, want idle", s.State())
	}
}

func TestRandomTransitionSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		s, h := openSession(t, capturetest.New())
		starts, stops := 0, 0

		for step := 0; step < 40; step++ {
			before := s.State()
			if rng.Intn(2) == 0 {
				err := s.Start()
				if before == capture.Capturing {
					if !errors.Is(err, capture.ErrAlreadyRunning) {
						t.Fatalf("run %d step %d: Start while capturing: %v", run, step, err)
					}
				} else if err != nil {
					t.Fatalf("run %d step %d: Start: %v", run, step, err)
				} else {
					starts++
				}
			} else {
				err := s.Stop()
				if before == capture.Idle {
					if !errors.Is(err, capture.ErrNotRunning) {
						t.Fatalf("run %d step %d: Stop while idle: %v", run, step, err)
					}
				} else if err != nil {
					t.Fatalf("run %d step %d: Stop: %v", run, step, err)
				} else {
					stops++
				}
			}

			capturing := s.State() == capture.Capturing
			if capturing != (starts == stops+1) {
				t.Fatalf("run %d step %d: capturing=%v with %d starts, %d stops", run, step, capturing, starts, stops)
			}
			if starts-stops < 0 || starts-stops > 1 {
				t.Fatalf("run %d step %d: unbalanced %d starts, %d stops", run, step, starts, stops)
			}
		}
		if h.Starts() != starts || h.Stops() != stops {
			t.Fatalf("run %d: backend saw %d/%d, session %d/%d", run, h.Starts(), h.Stops(), starts, stops)
		}
	}
}

func TestNextFrameWrapsBackendErrors(t *testing.T) {
	b := capturetest.New()
	s, _ := openSession(t, b)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.FrameErr = errors.New("stream ended")
	_, err := s.NextFrame()
	if !errors.Is(err, capture.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if !errors.Is(err, b.FrameErr) {
		t.Fatalf("err = %v does not carry the backend error", err)
	}
}

func TestNextFrameWhileIdleIsDelegated(t *testing.T) {
	s, h := openSession(t, capturetest.New())

	// No state check in the session: the fake backend decides.
	_, err := s.NextFrame()
	if !errors.Is(err, capturetest.ErrNotStarted) {
		t.Fatalf("err = %v, want backend ErrNotStarted", err)
	}
	if h.MaxConcurrent() != 1 {
		t.Fatal("session did not reach the backend")
	}
}

func TestConcurrentFramePullsShareTheLock(t *testing.T) {
	b := capturetest.New()
	b.FrameDelay = 50 * time.Millisecond
	s, h := openSession(t, b)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.NextFrame(); err != nil {
				t.Errorf("NextFrame: %v", err)
			}
		}()
	}
	wg.Wait()

	if h.MaxConcurrent() < 2 {
		t.Fatalf("max concurrent pulls = %d, want >= 2", h.MaxConcurrent())
	}
}

func TestStopWaitsForInFlightFrame(t *testing.T) {
	b := capturetest.New()
	b.FrameDelay = 100 * time.Millisecond
	s, _ := openSession(t, b)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := s.NextFrame()
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Had Stop run alongside the pull, the backend would have reported
	// ErrNotStarted after its delay.
	if err := <-errc; err != nil {
		t.Fatalf("in-flight NextFrame: %v", err)
	}
}

func TestOutputSize(t *testing.T) {
	b := capturetest.New()
	b.Width, b.Height = 320, 200
	s, _ := openSession(t, b)

	if got := s.OutputSize(); got != [2]uint32{320, 200} {
		t.Fatalf("OutputSize = %v, want [320 200]", got)
	}
}

func TestCloseStopsAndReleases(t *testing.T) {
	b := capturetest.New()
	s, err := capture.Open(b, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h := b.Handles()[0]
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.Stops() != 1 || !h.Closed() {
		t.Fatalf("Close: stops=%d closed=%v", h.Stops(), h.Closed())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Start(); !errors.Is(err, capture.ErrClosed) {
		t.Fatalf("Start after Close: %v, want ErrClosed", err)
	}
	if _, err := s.NextFrame(); !errors.Is(err, capture.ErrClosed) {
		t.Fatalf("NextFrame after Close: %v, want ErrClosed", err)
	}
}
