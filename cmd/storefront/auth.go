package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/pkg/auth"
	"github.com/storefront-dev/storefront/pkg/session"
)

func loginCmd(flags *globalFlags) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. The tokens are stored in the
configured session backend and reused by the other commands.

Examples:
  storefront login --email a@b.com --password secret1
  echo secret1 | storefront login --email a@b.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readSecret("Password: "); err != nil {
					return err
				}
			}

			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Auth.Login(cmd.Context(), auth.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			success("Signed in as %s (%s)", res.User.Name, res.User.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin if omitted)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func registerCmd(flags *globalFlags) *cobra.Command {
	var (
		reg  auth.Registration
		role string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account or apply as a vendor",
		Long: `Create an account. Customers are signed in immediately. A vendor
registration is an application: nothing is stored until an admin approves
it and the vendor signs in with login.

Examples:
  storefront register --name Asha --email a@b.com --password secret1
  storefront register --role vendor --business "Momo House" --name Kiran --email k@b.com --password secret1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != "" {
				r, err := session.ParseRole(role)
				if err != nil {
					return err
				}
				reg.Role = r
			}
			if reg.Password == "" {
				var err error
				if reg.Password, err = readSecret("Password: "); err != nil {
					return err
				}
			}

			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Auth.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			if res.RequiresApproval {
				success("Application submitted")
				if res.Message != "" {
					info("%s", res.Message)
				}
				info("Sign in with `storefront login` once an admin approves it.")
				return nil
			}
			success("Registered and signed in as %s", res.User.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&reg.Name, "name", "", "Display name")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "Password (read from stdin if omitted)")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&role, "role", "customer", "Account role (customer or vendor)")
	cmd.Flags().StringVar(&reg.BusinessName, "business", "", "Business name for vendor applications")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.Auth.IsAuthenticated() {
				warn("Not signed in")
				return nil
			}
			if err := client.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			success("Signed out")
			return nil
		},
	}
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := requireSession(client); err != nil {
				return err
			}
			u, ok := client.Auth.CurrentUser()
			if !ok {
				warn("Signed in, but no profile is stored")
				return nil
			}
			fmt.Printf("  Name:   %s\n", u.Name)
			fmt.Printf("  Email:  %s\n", u.Email)
			fmt.Printf("  Role:   %s\n", u.Role)
			if u.Phone != "" {
				fmt.Printf("  Phone:  %s\n", u.Phone)
			}
			fmt.Printf("  ID:     %s\n", u.ID)
			return nil
		},
	}
}

// readSecret reads one line from stdin, prompting when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		fmt.Print(prompt)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
