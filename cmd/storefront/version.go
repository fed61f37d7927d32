package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/pkg/realtime"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}

			fmt.Printf("storefront %s (%s, built %s)\n", version, commit, date)
			fmt.Printf("  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Printf("  settings:    %s, %s_* variables\n", config.ConfigFileName, strings.ToUpper(config.EnvPrefix))
			fmt.Printf("  push events: %s, %s\n", realtime.EventNotification, realtime.EventOrderUpdate)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	return cmd
}
