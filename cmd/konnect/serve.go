package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/metrics"
	"github.com/cyberinferno/konnect/relay"
	"github.com/cyberinferno/konnect/tcpserver"
	"github.com/cyberinferno/konnect/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCmd(opts *commonOptions) *cobra.Command {
	var (
		adminAddr    string
		redisAddr    string
		redisChannel string
		trace        bool
		echo         bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a TCP server",
		Long: `Run a TCP server that prints every connection event.

With --admin, an HTTP listener exposes Prometheus metrics on /metrics,
the open connections on /connections and a health check on /healthz.
With --redis, every event is also published on a Redis channel.
With --trace, one span per connection is written to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.builder(cmd)
			if err != nil {
				return err
			}

			if !quiet {
				b.RegisterObserver(newPrinter(cmd.OutOrStdout()))
			}

			reg := prometheus.NewRegistry()
			b.RegisterObserver(metrics.NewObserver(metrics.WithRegistry(reg), metrics.WithSubsystem("server")))

			if trace {
				tp, shutdown, err := newTracerProvider(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer shutdown()
				b.RegisterObserver(tracing.NewObserver(tracing.WithTracer(tp.Tracer("konnect"))))
			}

			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				defer client.Close()
				b.RegisterObserver(relay.NewObserver(client, relay.WithChannel(redisChannel)))
			}

			var srv *tcpserver.Server
			if echo {
				b.RegisterObserver(events.ObserverFuncs{
					Data: func(peer events.Peer, data any) {
						_ = srv.Send(peer.ID(), data)
					},
				})
			}

			cfg, err := b.Build()
			if err != nil {
				return err
			}

			srv, err = tcpserver.New(cfg)
			if err != nil {
				return err
			}

			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", srv.Addr())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if adminAddr != "" {
				admin := &http.Server{
					Addr:              adminAddr,
					Handler:           adminRouter(srv, reg),
					ReadHeaderTimeout: 5 * time.Second,
				}

				go func() {
					if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fmt.Fprintf(cmd.ErrOrStderr(), "admin server: %s\n", err)
						stop()
					}
				}()

				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = admin.Shutdown(shutdownCtx)
				}()

				fmt.Fprintf(cmd.OutOrStdout(), "admin on http://%s\n", adminAddr)
			}

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin", "", "Address of the admin HTTP listener (disabled when empty)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address to publish events to (disabled when empty)")
	cmd.Flags().StringVar(&redisChannel, "redis-channel", relay.DefaultChannel, "Redis pub/sub channel")
	cmd.Flags().BoolVar(&trace, "trace", false, "Record an OpenTelemetry span per connection, exported as JSON to stderr")
	cmd.Flags().BoolVar(&echo, "echo", false, "Send every received unit back to its sender")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print events")

	return cmd
}
