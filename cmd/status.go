package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/papersync/internal/pairing"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pairing and credential state",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)

			state := a.coordinator.State()
			fmt.Printf("State:   %s\n", state)
			fmt.Printf("Server:  %s\n", orUnset(cfg.ServerURL))
			fmt.Printf("Device:  %s\n", cfg.DeviceName)

			if state != pairing.StatePaired {
				return
			}

			cred := a.store.Read()
			fmt.Printf("ID:      %s\n", cred.DeviceID)
			expiry := time.UnixMilli(cred.ExpiresAt)
			if cred.Expired(time.Now()) {
				fmt.Printf("Token:   expired %s (refreshes on next call)\n", expiry.Format(time.RFC3339))
			} else {
				fmt.Printf("Token:   valid until %s\n", expiry.Format(time.RFC3339))
			}
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}
