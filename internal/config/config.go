package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Model        ModelConfig        `koanf:"model"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Approval     ApprovalConfig     `koanf:"approval"`
	Store        StoreConfig        `koanf:"store"`
	Sim          SimConfig          `koanf:"sim"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type ModelConfig struct {
	Provider       string `koanf:"provider"`
	Name           string `koanf:"name"`
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	RequestTimeout string `koanf:"request_timeout"`
}

type OrchestratorConfig struct {
	RepromptMax  int `koanf:"reprompt_max"`
	HistoryLimit int `koanf:"history_limit"`
}

type ApprovalConfig struct {
	Timeout   string `koanf:"timeout"`
	OnTimeout string `koanf:"on_timeout"`
}

type StoreConfig struct {
	CSVPath      string `koanf:"csv_path"`
	LockTimeout string `koanf:"lock_timeout"`
	LockRetry   string `koanf:"lock_retry"`
}

type SimConfig struct {
	Count          int    `koanf:"count"`
	Concurrency    int    `koanf:"concurrency"`
	Seed           int64  `koanf:"seed"`
	ApprovalPolicy string `koanf:"approval_policy"`
	Schedule       string `koanf:"schedule"`
}

const (
	DefaultServerPort             = 8080
	DefaultServerLogLevel         = "info"
	DefaultServerReadTimeout      = "10s"
	DefaultServerWriteTimeout     = "10s"
	DefaultServerIdleTimeout      = "60s"
	DefaultServerShutdownTimeout  = "5s"
	DefaultModelProvider          = "openai"
	DefaultModelName              = "gpt-4o-mini"
	DefaultModelRequestTimeout    = "60s"
	DefaultOrchestratorReprompts  = 2
	DefaultOrchestratorHistory    = 40
	DefaultApprovalTimeout        = "120s"
	DefaultApprovalOnTimeout      = "deny"
	DefaultStoreLockTimeout       = "30s"
	DefaultStoreLockRetry         = "100ms"
	DefaultSimCount               = 50
	DefaultSimConcurrency         = 4
	DefaultSimSeed          int64 = 1
	DefaultSimApprovalPolicy      = "auto-approve"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":               DefaultServerPort,
		"server.log_level":          DefaultServerLogLevel,
		"server.read_timeout":       DefaultServerReadTimeout,
		"server.write_timeout":      DefaultServerWriteTimeout,
		"server.idle_timeout":       DefaultServerIdleTimeout,
		"server.shutdown_timeout":   DefaultServerShutdownTimeout,
		"model.provider":            DefaultModelProvider,
		"model.name":                DefaultModelName,
		"model.request_timeout":     DefaultModelRequestTimeout,
		"orchestrator.reprompt_max": DefaultOrchestratorReprompts,
		"orchestrator.history_limit": DefaultOrchestratorHistory,
		"approval.timeout":           DefaultApprovalTimeout,
		"approval.on_timeout":        DefaultApprovalOnTimeout,
		"store.csv_path":             filepath.Join("data", "doctor_availability.csv"),
		"store.lock_timeout":         DefaultStoreLockTimeout,
		"store.lock_retry":           DefaultStoreLockRetry,
		"sim.count":                  DefaultSimCount,
		"sim.concurrency":            DefaultSimConcurrency,
		"sim.seed":                   DefaultSimSeed,
		"sim.approval_policy":        DefaultSimApprovalPolicy,
		"sim.schedule":               "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".carelane", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("CARELANE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CARELANE_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	return &cfg, nil
}
