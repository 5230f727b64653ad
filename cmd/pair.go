package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/papersync/internal/pairing"
)

func pairCmd() *cobra.Command {
	var showQR bool

	cmd := &cobra.Command{
		Use:   "pair [payload]",
		Short: "Pair this device using a pairing token or scanned QR payload",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			payload, err := pairing.ParseQRPayload(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid pairing payload: %v\n", err)
				os.Exit(1)
			}

			cfg := loadConfig()
			if payload.ServerURL != "" {
				cfg.ServerURL = payload.ServerURL
			}
			a := newApp(cfg)

			if showQR {
				// Re-render the payload so the token can be scanned by
				// another device instead of typed.
				qr, err := pairing.RenderQR(*payload)
				if err != nil {
					fmt.Fprintf(os.Stderr, "QR render failed: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(qr)
				return
			}

			a.requireServer()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := a.coordinator.Pair(ctx, payload.PairingToken); err != nil {
				fmt.Fprintf(os.Stderr, "Pairing failed: %v\n", err)
				os.Exit(1)
			}

			cred := a.store.Read()
			fmt.Printf("Paired as %q (device %s).\n", cfg.DeviceName, cred.DeviceID)
		},
	}

	cmd.Flags().BoolVar(&showQR, "show-qr", false, "render the pairing payload as a terminal QR code instead of pairing")
	return cmd
}

func unpairCmd() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "unpair",
		Short: "Revoke this device and clear the local credential",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := a.coordinator.Unpair(ctx, permanent); err != nil {
				fmt.Fprintf(os.Stderr, "Unpair failed: %v\n", err)
				os.Exit(1)
			}

			if permanent {
				fmt.Println("Unpaired. This device will appear as a new device if paired again.")
			} else {
				fmt.Println("Unpaired.")
			}
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "also reset the device fingerprint")
	return cmd
}
