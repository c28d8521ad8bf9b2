package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/config"
	"github.com/carelane/carelane/internal/ingress"
	"github.com/carelane/carelane/internal/schedule"
	"github.com/carelane/carelane/internal/sim"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves the turn, decision, and simulation endpoints. Approvals arrive through POST /api/v1/decisions while the originating turn request stays open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		resolver := approval.NewResolverChannel()
		orch, err := buildOrchestrator(store, resolver)
		if err != nil {
			return err
		}
		orch.UseResolver(resolver)

		wait, err := approvalWait()
		if err != nil {
			return err
		}

		harness := sim.NewHarness()
		sandbox := func() *schedule.MemoryStore { return store.Sandbox() }
		server := ingress.NewHTTPServer(cfg.Server, wait, orch, harness, sandbox, simOptions())
		server.Start()

		// Optional recurring self-test against a schedule sandbox.
		var runner *cron.Cron
		if cfg.Sim.Schedule != "" {
			if _, err := cron.ParseStandard(cfg.Sim.Schedule); err != nil {
				return err
			}
			runner = cron.New()
			runner.AddFunc(cfg.Sim.Schedule, func() {
				if _, err := harness.Run(context.Background(), sandbox(), simOptions()); err != nil {
					slog.Error("Scheduled simulation failed", "error", err)
				}
			})
			runner.Start()
			slog.Info("Scheduled simulations enabled", "schedule", cfg.Sim.Schedule)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		slog.Info("Shutting down")
		if runner != nil {
			<-runner.Stop().Done()
		}

		timeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
		if err != nil {
			timeout, _ = config.DurationOrDefault(config.DefaultServerShutdownTimeout, config.DefaultServerShutdownTimeout)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return server.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
