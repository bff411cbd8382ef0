package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Zereker/gamenet/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// load reads the configuration and builds the logger it describes.
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := newLogrus(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gamenet",
		Short: "Chat server and client over the gamenet protocol",
		Long: `gamenet runs a small chat service on top of the gamenet transport and
messenger layers. Use it to exercise a deployment end to end: serve starts a
server that echoes and broadcasts chat lines, dial connects to it and sends
lines read from standard input.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(opts),
		dialCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
