package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbrownnycnyc/signalerr/arr"
	"github.com/mbrownnycnyc/signalerr/metrics"
	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/store"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity to the configured services",
	Long:  `Check the database, Overseerr, and any configured Radarr/Sonarr instances, then report what works.`,
	RunE:  runConnectivityTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runConnectivityTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failures := 0

	fmt.Printf("Testing database (%s)... ", cfg.Database.Driver)
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		URL:    cfg.Database.URL,
	}, logger)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		failures++
	} else {
		fmt.Println("✓ OK")
		defer st.Close()
	}

	fmt.Printf("Testing Overseerr at %s... ", cfg.Overseerr.URL)
	media, err := overseerr.NewClient(cfg.Overseerr.URL, cfg.Overseerr.APIKey, logger, overseerr.WithMetrics(metrics.Registry("signalerr")))
	if err == nil {
		err = media.TestConnection(ctx)
	}
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		failures++
	} else {
		fmt.Println("✓ OK")
	}

	if cfg.Radarr.Enabled {
		fmt.Printf("Testing Radarr at %s... ", cfg.Radarr.URL)
		if _, err := arr.NewRadarrClient(cfg.Radarr.URL, cfg.Radarr.APIKey); err != nil {
			fmt.Printf("✗ %v\n", err)
			failures++
		} else {
			fmt.Println("✓ OK")
		}
	} else {
		fmt.Println("Radarr: disabled")
	}

	if cfg.Sonarr.Enabled {
		fmt.Printf("Testing Sonarr at %s... ", cfg.Sonarr.URL)
		if _, err := arr.NewSonarrClient(cfg.Sonarr.URL, cfg.Sonarr.APIKey); err != nil {
			fmt.Printf("✗ %v\n", err)
			failures++
		} else {
			fmt.Println("✓ OK")
		}
	} else {
		fmt.Println("Sonarr: disabled")
	}

	fmt.Printf("Signal daemon: %s (checked at runtime, the bot reconnects automatically)\n", cfg.Signal.RPCAddr)

	if failures > 0 {
		return fmt.Errorf("%d connectivity check(s) failed", failures)
	}
	fmt.Println("\nAll checks passed.")
	return nil
}
