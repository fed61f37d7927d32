package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront"
	"github.com/storefront-dev/storefront/pkg/order"
	"github.com/storefront-dev/storefront/pkg/session"
)

func ordersCmd(flags *globalFlags) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"o"},
		Short:   "List orders and change their status",
	}
	cmd.PersistentFlags().StringVar(&role, "role", "", "Act as this role (default: the signed-in user's role)")

	cmd.AddCommand(
		ordersListCmd(flags, &role),
		ordersSetStatusCmd(flags, &role),
	)
	return cmd
}

func ordersListCmd(flags *globalFlags, role *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the orders visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			board, err := openBoard(cmd, client, *role)
			if err != nil {
				return err
			}
			defer board.Close()

			orders := board.Orders()
			if len(orders) == 0 {
				info("No orders")
				return nil
			}
			for _, o := range orders {
				next := board.Available(o.ID)
				names := make([]string, len(next))
				for i, s := range next {
					names[i] = string(s)
				}
				fmt.Printf("%s  %-10s %-8s %-16s %8.2f  -> %s\n",
					o.ID, o.Status, o.PaymentStatus, o.PaymentMethod, o.TotalAmount, strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func ordersSetStatusCmd(flags *globalFlags, role *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <order-id> <status>",
		Short: "Move an order to a new status",
		Long: `Request a status change. The change is checked locally against the
lifecycle and payment rules before it is sent.

Statuses: pending, preparing, on-the-way, delivered, cancelled

Examples:
  storefront orders set-status 64f0c2 preparing
  storefront orders set-status 64f0c2 cancelled --role admin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := order.ParseStatus(args[1])
			if err != nil {
				return err
			}

			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			board, err := openBoard(cmd, client, *role)
			if err != nil {
				return err
			}
			defer board.Close()

			if err := board.UpdateStatus(cmd.Context(), args[0], target); err != nil {
				return err
			}
			o, _ := board.Get(args[0])
			success("Order %s is now %s", o.ID, o.Status)
			return nil
		},
	}
}

// openBoard loads a board for role, or for the signed-in user's role.
func openBoard(cmd *cobra.Command, client *storefront.Client, role string) (*order.Board, error) {
	if err := requireSession(client); err != nil {
		return nil, err
	}

	r := session.RoleCustomer
	if u, ok := client.Auth.CurrentUser(); ok {
		r = u.Role
	}
	if role != "" {
		parsed, err := session.ParseRole(role)
		if err != nil {
			return nil, err
		}
		r = parsed
	}

	board := client.Board(r, nil)
	if err := board.Load(cmd.Context()); err != nil {
		board.Close()
		return nil, err
	}
	return board, nil
}
