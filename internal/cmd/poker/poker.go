// Package poker parses poker command flags and composes transport entrypoints.
package poker

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/pointing.space/internal/platform/cmd"
	server "github.com/louisbranch/pointing.space/internal/services/poker/app"
)

// Config holds poker command configuration.
type Config struct {
	HTTPAddr      string        `env:"POINTING_SPACE_POKER_HTTP_ADDR"      envDefault:":8080"`
	SweepInterval time.Duration `env:"POINTING_SPACE_POKER_SWEEP_INTERVAL" envDefault:"1m"`
	IdleGrace     time.Duration `env:"POINTING_SPACE_POKER_IDLE_GRACE"     envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "poker HTTP listen address")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often idle sessions are checked")
	fs.DurationVar(&cfg.IdleGrace, "idle-grace", cfg.IdleGrace, "how long an empty session survives before reclamation")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the poker app and starts realtime transport behavior.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePoker, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			SweepInterval: cfg.SweepInterval,
			IdleGrace:     cfg.IdleGrace,
		}); err != nil {
			return fmt.Errorf("serve poker: %w", err)
		}
		return nil
	})
}
