package main

import (
	"fmt"
	"os"

	"github.com/danmuck/wirelink/internal/config"
	"github.com/danmuck/wirelink/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wirectl",
		Short: "Framed, encrypted session server and client",
		Long: `wirectl runs wirelink session endpoints.

Frames are length-prefixed, optionally AES-CBC encrypted with an
HMAC-SHA256 tag, and carry per-session sequence numbers for replay
protection. The server speaks raw TCP and websocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		keygenCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig returns defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
