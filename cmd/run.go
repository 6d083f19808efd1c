package cmd

import (
	"context"
	"errors"
	"fmt"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golift.io/starr/radarr"
	"golift.io/starr/sonarr"

	"github.com/mbrownnycnyc/signalerr/arr"
	"github.com/mbrownnycnyc/signalerr/bot"
	"github.com/mbrownnycnyc/signalerr/config"
	"github.com/mbrownnycnyc/signalerr/lifecycle"
	"github.com/mbrownnycnyc/signalerr/metrics"
	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/policy"
	"github.com/mbrownnycnyc/signalerr/ratelimit"
	"github.com/mbrownnycnyc/signalerr/server"
	"github.com/mbrownnycnyc/signalerr/signal"
	"github.com/mbrownnycnyc/signalerr/store"
)

const (
	settingsRefreshInterval = time.Minute
	logPruneInterval        = time.Hour
	dailyStatsInterval      = 24 * time.Hour
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot daemon",
	Long: `Connect to the signal-cli daemon and Overseerr, then serve chat commands
until interrupted. Also starts the admin HTTP surface unless disabled.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.Registry("signalerr")

	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		URL:    cfg.Database.URL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	baseline, err := config.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	rows, err := st.Settings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings rows: %w", err)
	}
	runtime := config.NewRuntime(baseline.Merge(rows))

	media, err := overseerr.NewClient(cfg.Overseerr.URL, cfg.Overseerr.APIKey, logger, overseerr.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create Overseerr client: %w", err)
	}
	if err := media.TestConnection(ctx); err != nil {
		return fmt.Errorf("overseerr connection failed: %w", err)
	}

	eta := buildETASource()

	scheduler := lifecycle.NewScheduler(logger)
	defer scheduler.Stop()

	limiter := ratelimit.New(st)

	var engine *policy.Engine
	if len(cfg.Bot.PolicyRules) > 0 {
		engine, err = policy.NewEngine(cfg.Bot.PolicyRules, logger)
		if err != nil {
			return fmt.Errorf("invalid policy rules: %w", err)
		}
		logger.Info().Int("rules", engine.Len()).Msg("Policy engine enabled")
	}

	sig := signal.NewClient(cfg.Signal.RPCAddr, cfg.Signal.Account, logger)

	manager := lifecycle.New(st, media, sig, eta, scheduler, limiter, runtime, engine, m, logger)
	router := bot.New(st, manager, media, sig, runtime, limiter, m, logger)

	reload := func(ctx context.Context) error {
		rows, err := st.Settings(ctx)
		if err != nil {
			return err
		}
		runtime.Swap(baseline.Merge(rows))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sig.Listen(gctx, func(msg signal.Message) {
			router.HandleMessage(gctx, msg)
		})
	})

	if cfg.Server.Enabled {
		admin := server.New(st, manager, runtime, reload, logger)
		g.Go(func() error {
			return admin.Run(gctx, cfg.Server.Addr)
		})
	}

	// The admin console writes settings rows out of band, so the snapshot
	// refreshes on an interval as well as on explicit reload.
	g.Go(func() error {
		ticker := time.NewTicker(settingsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := reload(gctx); err != nil {
					logger.Warn().Err(err).Msg("Settings refresh failed")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(logPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				retention := runtime.Current().LogRetention
				if retention <= 0 {
					continue
				}
				pruned, err := st.PruneLogs(gctx, time.Now().Add(-retention))
				if err != nil {
					logger.Warn().Err(err).Msg("Log pruning failed")
					continue
				}
				if pruned > 0 {
					logger.Debug().Int64("pruned", pruned).Msg("Old log entries pruned")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(dailyStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := router.SendDailyStats(gctx); err != nil {
					logger.Warn().Err(err).Msg("Daily stats delivery failed")
				}
			}
		}
	})

	logger.Info().
		Str("account", cfg.Signal.Account).
		Str("overseerr", cfg.Overseerr.URL).
		Msg("signalerr is running")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// buildETASource wires the optional Radarr and Sonarr clients used only for
// download ETA enrichment. Either or both may be absent; an unreachable
// instance downgrades to a warning rather than blocking startup.
func buildETASource() lifecycle.ETAProvider {
	var rc *radarr.Radarr
	var sc *sonarr.Sonarr

	if cfg.Radarr.Enabled {
		c, err := arr.NewRadarrClient(cfg.Radarr.URL, cfg.Radarr.APIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Radarr unreachable, continuing without movie ETAs")
		} else {
			rc = c
		}
	}
	if cfg.Sonarr.Enabled {
		c, err := arr.NewSonarrClient(cfg.Sonarr.URL, cfg.Sonarr.APIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Sonarr unreachable, continuing without series ETAs")
		} else {
			sc = c
		}
	}

	if rc == nil && sc == nil {
		logger.Info().Msg("No Radarr/Sonarr configured, download ETAs disabled")
		return nil
	}
	logger.Info().Bool("radarr", rc != nil).Bool("sonarr", sc != nil).Msg("Download ETA lookups enabled")
	return arr.NewETASource(rc, sc, logger)
}
