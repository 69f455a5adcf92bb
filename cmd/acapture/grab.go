package main

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/acapture/env"
	"go2tv.app/acapture/frame"
)

var grabPNG string

var grabCmd = &cobra.Command{
	Use:   "grab",
	Short: "Capture frames and print their size and latency",
	Long: `grab resets the environment, then steps through the configured number
of frames (grab.frames), printing the shape of each frame and how long it
took to arrive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, closeFn, err := openBackend()
		if err != nil {
			return err
		}
		defer closeFn()

		e, err := env.New(b, cfg.Capture.Params(), env.WithWarner(warner(cmd.ErrOrStderr())))
		if err != nil {
			return err
		}
		defer e.Release()

		last, err := grab(cmd.OutOrStdout(), e, cfg.Grab.Frames)
		e.Close()
		if err != nil {
			return err
		}

		if grabPNG != "" {
			if err := writePNG(grabPNG, last); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", grabPNG)
		}
		return nil
	},
}

func init() {
	grabCmd.Flags().IntP("frames", "n", 0, "number of frames to capture (default from grab.frames)")
	grabCmd.Flags().StringVar(&grabPNG, "png", "", "write the last frame to this PNG file")
	_ = v.BindPFlag("grab.frames", grabCmd.Flags().Lookup("frames"))
}

type stepper interface {
	Reset() (frame.ImageArray, env.Info, error)
	Step() (frame.ImageArray, env.Info, error)
}

// grab takes n frames, the first through Reset, and reports each on out.
func grab(out io.Writer, e stepper, n int) (frame.ImageArray, error) {
	var last frame.ImageArray
	for i := 0; i < n; i++ {
		start := time.Now()
		var (
			img frame.ImageArray
			err error
		)
		if i == 0 {
			img, _, err = e.Reset()
		} else {
			img, _, err = e.Step()
		}
		if err != nil {
			return last, fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Fprintf(out, "frame %3d: %v in %s\n", i, img.Shape, time.Since(start).Round(time.Microsecond))
		last = img
	}
	return last, nil
}

// bgrImage adapts a BGR ImageArray to image.Image for encoding.
func bgrImage(a frame.ImageArray) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, a.Width(), a.Height()))
	for r := 0; r < a.Height(); r++ {
		for c := 0; c < a.Width(); c++ {
			i := img.PixOffset(c, r)
			img.Pix[i+0] = a.At(r, c, 2)
			img.Pix[i+1] = a.At(r, c, 1)
			img.Pix[i+2] = a.At(r, c, 0)
			img.Pix[i+3] = 0xFF
		}
	}
	return img
}

func writePNG(path string, a frame.ImageArray) error {
	if a.Len() == 0 {
		return fmt.Errorf("no frame to write")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, bgrImage(a)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
