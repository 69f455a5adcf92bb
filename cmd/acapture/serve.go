package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go2tv.app/acapture/internal/wsfeed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve capture environments to websocket clients",
	Long: `serve accepts websocket connections on /env. Each connection gets its
own environment and drives it with reset, step, close and targets requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, closeFn, err := openBackend()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return wsfeed.New(b, cfg.Capture.Params()).ListenAndServe(ctx, cfg.Serve.Listen)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default from serve.listen)")
	_ = v.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
}
