package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/gamenet"
	"github.com/Zereker/gamenet/config"
	"github.com/Zereker/gamenet/messenger"
)

func dialCmd(opts *rootOptions) *cobra.Command {
	var (
		name  string
		token string
	)

	cmd := &cobra.Command{
		Use:   "dial [host:port]",
		Short: "Connect to a chat server",
		Long: `Connect to a chat server and send every line read from standard input.
The line "/ping" measures the round trip to the server instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := overrideAddr(&cfg.Client, args[0]); err != nil {
					return err
				}
			}
			return dial(cmd.Context(), cfg.Client, newLogger(logger), name, token)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "name shown to other players")
	cmd.Flags().StringVarP(&token, "token", "t", "guest", "authentication token")

	return cmd
}

func overrideAddr(cfg *config.ClientConfig, addr string) error {
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return errors.Errorf("address %q is not host:port", addr)
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return errors.Wrapf(err, "port %q", port)
	}
	cfg.Host, cfg.Port = host, p
	return nil
}

func dial(ctx context.Context, cfg config.ClientConfig, logger *logrusLogger, name, token string) error {
	client, err := gamenet.NewClient(append(cfg.Options(), gamenet.LoggerOption(logger))...)
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	session := messenger.NewClientSession(client, reg, messenger.WithLogger(logger))
	_ = messenger.SetListener(session.Handler(), func(m messenger.Message[chatMessage]) {
		fmt.Printf("[%s] %s: %s\n", m.Data.Sent.Format(time.Kitchen), m.Data.From, m.Data.Text)
	})

	connected := make(chan error, 1)
	session.OnConnected(func() { connected <- nil })
	session.OnDisconnected(func(err error) {
		if err == nil {
			err = errors.New("disconnected")
		}
		select {
		case connected <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client.Start(cfg.Host, cfg.Port)
	defer client.Stop()

	go func() {
		_ = session.Run(ctx)
	}()

	select {
	case err := <-connected:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := session.Authenticate(ctx, token); err != nil {
		return errors.Wrap(err, "authenticate")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-connected:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, cfg, name, line); err != nil {
				logger.Warn("send failed", "error", err)
			}
		}
	}
}

func handleLine(ctx context.Context, session *messenger.ClientSession, cfg config.ClientConfig, name, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/ping":
		rtt, err := session.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("rtt %s\n", rtt)
		return nil
	}

	rsp := messenger.Request[chatMessage, chatMessage](ctx, session.Handler(), chatMessage{From: name, Text: line}, cfg.RequestTimeout.Duration)
	return rsp.Err
}
