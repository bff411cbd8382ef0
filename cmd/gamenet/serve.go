package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/gamenet"
	"github.com/Zereker/gamenet/config"
	"github.com/Zereker/gamenet/messenger"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a chat server",
		Long: `Run a chat server. Every chat line a client sends is answered with the
stamped copy and broadcast to all connected clients. Connections are pinged
periodically and kicked when they stay silent longer than the idle timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg, newLogger(logger))
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides the config file)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *logrusLogger) error {
	transportOpts := append(cfg.Server.Options(), gamenet.LoggerOption(logger))

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		transportOpts = append(transportOpts, gamenet.MetricsOption(gamenet.NewMetrics(reg, cfg.Metrics.Namespace, "server")))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	server, err := gamenet.NewServer(transportOpts...)
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	session := messenger.NewServerSession(server, reg, messenger.WithLogger(logger))
	session.SetAuthenticator(func(connID int, token string) (string, error) {
		if token == "" {
			return "", errors.New("empty token")
		}
		return uuid.NewString(), nil
	})
	session.OnConnected(func(connID int, h *messenger.Handler) {
		addr, _ := server.RemoteAddr(connID)
		logger.Info("player joined", "id", connID, "remote_addr", addr)

		_ = messenger.SetListener(h, func(m messenger.Message[chatMessage]) {
			line := m.Data
			line.Sent = time.Now()
			if line.From == "" {
				line.From = addr
			}
			if err := messenger.Respond(m.Handler, m.ID, line); err != nil {
				logger.Warn("chat ack failed", "id", connID, "error", err)
			}
			if err := messenger.Broadcast(session, line); err != nil {
				logger.Warn("chat broadcast failed", "error", err)
			}
		})
	})
	session.OnDisconnected(func(connID int, err error) {
		logger.Info("player left", "id", connID, "error", err)
	})

	if err := server.Start(cfg.Server.Port); err != nil {
		return err
	}
	logger.Info("serving", "addr", server.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := session.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		keepAlive(ctx, session, cfg.Server, logger)
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if stopErr := server.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// keepAlive pings every connection and kicks the idle ones until ctx is done.
func keepAlive(ctx context.Context, session *messenger.ServerSession, cfg config.ServerConfig, logger *logrusLogger) {
	interval := cfg.PingInterval.Duration
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if cfg.IdleTimeout.Duration > 0 {
			for _, id := range session.IdleConnections(cfg.IdleTimeout.Duration) {
				logger.Info("kicking idle player", "id", id)
				_ = session.Kick(id, "idle for too long")
			}
		}

		var g errgroup.Group
		for _, id := range session.ConnectionIDs() {
			g.Go(func() error {
				pingCtx, cancel := context.WithTimeout(ctx, interval)
				defer cancel()

				rtt, err := session.Ping(pingCtx, id)
				if err != nil {
					logger.Debug("ping failed", "id", id, "error", err)
					return nil
				}
				logger.Debug("ping", "id", id, "rtt", rtt)
				return nil
			})
		}
		_ = g.Wait()
	}
}
