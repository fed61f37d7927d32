package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/mockapi"
	"github.com/storefront-dev/storefront/pkg/notification"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/session"
)

func mockBackendCmd(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		seed     bool
		tokenTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Run an in-memory marketplace backend",
		Long: `Run a fake backend speaking the REST and push contract, for trying
the client without the real service. REST lives under /api and the push
socket at /ws.

With --seed it starts with a customer (customer@example.com), an approved
vendor (vendor@example.com) and an admin (admin@example.com), all with the
password "secret1", plus one order and one notification.

Examples:
  storefront mock-backend --seed
  storefront mock-backend --addr :9090 --token-ttl 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := resolveConfig(flags); err != nil {
				return err
			}
			return runMockBackend(cmd.Context(), addr, seed, tokenTTL)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Address to listen on")
	cmd.Flags().BoolVar(&seed, "seed", false, "Start with demo accounts and data")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 15*time.Minute, "Access token lifetime")
	return cmd
}

func runMockBackend(ctx context.Context, addr string, seed bool, ttl time.Duration) error {
	api := mockapi.New(mockapi.WithTokenTTL(ttl))
	if seed {
		seedDemo(api)
	}

	srv := &http.Server{Addr: addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	success("Mock backend listening on %s", addr)
	info("REST: http://localhost%s/api", addr)
	info("Push: ws://localhost%s/ws", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	api.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedDemo(api *mockapi.Server) {
	customer := api.AddUser(session.User{Name: "Demo Customer", Email: "customer@example.com", Role: session.RoleCustomer}, "secret1")
	vendor := api.AddUser(session.User{Name: "Demo Kitchen", Email: "vendor@example.com", Role: session.RoleVendor}, "secret1")
	api.AddUser(session.User{Name: "Admin", Email: "admin@example.com", Role: session.RoleAdmin}, "secret1")

	api.AddOrder(order.Order{
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCashOnDelivery,
		PaymentStatus: order.PaymentPending,
		Customer:      order.Party{ID: customer.ID, Name: customer.Name},
		Vendor:        order.Party{ID: vendor.ID, Name: vendor.Name},
		Items:         []order.Item{{Name: "Chicken momo", Quantity: 2, Price: 180}},
		TotalAmount:   360,
	})
	api.AddNotification(customer.ID, notification.Notification{
		Type:    "promo",
		Title:   "Welcome",
		Message: "Free delivery on your first order",
	})
}
