// README: Applies (or with --down rolls back one step of) the embedded schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"dispatch/internal/config"
	"dispatch/internal/infra"
)

func main() {
	fs := pflag.NewFlagSet("dispatch-migrate", pflag.ExitOnError)
	config.RegisterFlags(fs)
	down := fs.Bool("down", false, "roll back the most recent migration")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dispatch-migrate:", err)
		os.Exit(1)
	}
	logger, err := infra.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dispatch-migrate:", err)
		os.Exit(1)
	}

	if err := infra.Migrate(cfg.DB.DSN, *down); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "down", *down)
}
