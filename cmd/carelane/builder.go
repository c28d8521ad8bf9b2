package main

import (
	"fmt"
	"time"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/config"
	"github.com/carelane/carelane/internal/convo"
	"github.com/carelane/carelane/internal/orchestrator"
	"github.com/carelane/carelane/internal/reasoner"
	"github.com/carelane/carelane/internal/schedule"
	"github.com/carelane/carelane/internal/sim"
	"github.com/carelane/carelane/internal/tool"
	"github.com/carelane/carelane/internal/tool/builtin"
)

func openStore() (*schedule.CSVStore, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.Store.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.Store.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, fmt.Errorf("store lock retry: %w", err)
	}

	store, err := schedule.OpenCSVStore(cfg.Store.CSVPath, schedule.LockSettings{
		Timeout: lockTimeout,
		Retry:   lockRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}
	return store, nil
}

func buildOrchestrator(store schedule.Store, channel approval.Channel) (*orchestrator.Orchestrator, error) {
	registry, err := tool.NewRegistry(builtin.Specs(store)...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	proposer, err := reasoner.New(cfg.Model)
	if err != nil {
		return nil, err
	}

	timeout, err := approvalWait()
	if err != nil {
		return nil, err
	}
	gate := approval.NewGate(channel, timeout)

	contexts := convo.NewStore(cfg.Orchestrator.HistoryLimit)
	return orchestrator.New(registry, contexts, proposer, gate, cfg.Orchestrator.RepromptMax), nil
}

func approvalWait() (time.Duration, error) {
	timeout, err := config.DurationOrDefault(cfg.Approval.Timeout, config.DefaultApprovalTimeout)
	if err != nil {
		return 0, fmt.Errorf("approval timeout: %w", err)
	}
	return timeout, nil
}

func simOptions() sim.Options {
	return sim.Options{
		Count:       cfg.Sim.Count,
		Concurrency: cfg.Sim.Concurrency,
		Seed:        cfg.Sim.Seed,
		Policy:      cfg.Sim.ApprovalPolicy,
		RepromptMax: cfg.Orchestrator.RepromptMax,
	}
}
