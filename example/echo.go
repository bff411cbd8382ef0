package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/gamenet"
)

// echo sends every frame back to the connection it came from.
func echo(ctx context.Context, server *gamenet.Server) error {
	for {
		e, err := server.NextEvent(ctx)
		if err != nil {
			return err
		}

		switch e.Type {
		case gamenet.Connected:
			addr, _ := server.RemoteAddr(e.ConnID)
			slog.Info("add new conn", "connID", e.ConnID, "addr", addr)

		case gamenet.DataReceived:
			// Send copies the payload, so the receive buffer can go back right after.
			if err := server.Send(e.ConnID, e.Data); err != nil {
				slog.Error("echo failed", "connID", e.ConnID, "error", err)
			}
			e.Release()

		case gamenet.Disconnected:
			slog.Info("conn closed", "connID", e.ConnID, "error", e.Err)
		}
	}
}

func main() {
	server, err := gamenet.NewServer(
		gamenet.ListenHostOption("127.0.0.1"),
		gamenet.MaxConnectionsOption(16),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	if err := server.Start(12345); err != nil {
		slog.Error("failed to start server", "error", err)
		return
	}
	slog.Info("server start", "addr", server.Addr().String())

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := echo(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
	}

	slog.Info("shutting down server...")
	if err := server.Stop(); err != nil {
		slog.Error("stop failed", "error", err)
	}
}
