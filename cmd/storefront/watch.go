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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/pkg/eventbus"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print live events",
		Long: `Resume the stored session, open the push connection and print
notification, order and connection events until interrupted.

Examples:
  storefront watch
  storefront watch --metrics-addr :9102`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), flags, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func runWatch(ctx context.Context, flags *globalFlags, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := openClient(ctx, flags)
	if err != nil {
		return err
	}
	defer client.Close()

	ended := make(chan eventbus.AuthState, 1)
	stamp := func() string { return time.Now().Format("15:04:05") }

	unsubs := []func(){
		eventbus.Subscribe(client.Bus, eventbus.ConnectionStateChanged, func(s eventbus.ConnectionState) {
			info("%s connection %s (attempt %d)", stamp(), s.State, s.Attempt)
		}),
		eventbus.Subscribe(client.Bus, eventbus.NotificationsChanged, func(c eventbus.NotificationCounts) {
			info("%s notifications: %d unread, %d read (%s)", stamp(), c.Unread, c.Read, c.Cause)
		}),
		eventbus.Subscribe(client.Bus, eventbus.OrderUpdate, func(ev eventbus.OrderEvent) {
			info("%s order %s -> %s [%s]", stamp(), ev.OrderID, ev.Status, ev.Source)
		}),
		eventbus.Subscribe(client.Bus, eventbus.AuthStateChanged, func(s eventbus.AuthState) {
			if !s.Authenticated {
				select {
				case ended <- s:
				default:
				}
			}
		}),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	ok, err := client.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("not signed in; run `storefront login` first")
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				warn("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		info("Metrics on http://%s/metrics", metricsAddr)
	}

	if u, ok := client.Auth.CurrentUser(); ok {
		success("Watching as %s (%s). Press Ctrl+C to stop.", u.Name, u.Role)
	}

	select {
	case <-ctx.Done():
		fmt.Println()
		info("Stopped")
		return nil
	case s := <-ended:
		if s.Forced {
			return fmt.Errorf("session ended: %s", s.Reason)
		}
		return nil
	}
}
