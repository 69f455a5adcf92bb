package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go2tv.app/acapture/internal/config"
	"go2tv.app/acapture/internal/logging"
)

var (
	version = "0.1.0"
	v       = viper.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "acapture",
	Short: "Screen and window capture as BGR frames",
	Long: `acapture captures a display or window and hands out frames as
height x width x 3 BGR arrays, either to a local loop (grab) or to
websocket clients (serve).`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "acapture v%s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is "+config.ConfigDir()+"/acapture.yaml)")
	flags.String("backend", "", "capture backend: auto, display or portal")
	flags.Int64("target", config.NoTarget, "target id from 'acapture targets' (default: primary display)")
	flags.Int("fps", 0, "capture frame rate")
	flags.Bool("cursor", false, "draw the cursor into frames")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")

	bind := map[string]string{
		"config":              "config",
		"capture.backend":     "backend",
		"capture.target_id":   "target",
		"capture.frame_rate":  "fps",
		"capture.show_cursor": "cursor",
		"log.level":           "log-level",
		"log.format":          "log-format",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(grabCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(loaded.Log.Format, loaded.Log.Level, os.Stderr)

	for _, err := range loaded.Validate() {
		warner(cmd.ErrOrStderr()).Warn(err.Error())
	}
	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
