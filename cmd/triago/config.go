package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/opsgate/triago/internal/tools"
)

// Config holds all triago configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string                `json:"db_path"`
	LogLevel      string                `json:"log_level"`
	GitHubOwner   string                `json:"github_owner"`
	GitHubRepo    string                `json:"github_repo"`
	GitHubToken   string                `json:"github_token"`
	AWSRegion     string                `json:"aws_region"`
	ModelID       string                `json:"model_id"`
	ReportCron    string                `json:"report_cron"`
	AnalyzeTrends bool                  `json:"analyze_trends"`
	Ownership     []tools.OwnershipRule `json:"ownership_rules"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(triagoDir(), "triago.db"),
		LogLevel:      "info",
		AWSRegion:     "us-east-1",
		ModelID:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
		ReportCron:    "0 9 * * *",
		AnalyzeTrends: true,
		Ownership:     tools.DefaultOwnershipRules(),
	}
}

func triagoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".triago"
	}
	return filepath.Join(home, ".triago")
}

func settingsPath() string {
	return filepath.Join(triagoDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("TRIAGO_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TRIAGO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRIAGO_GITHUB_OWNER"); v != "" {
		cfg.GitHubOwner = v
	}
	if v := os.Getenv("TRIAGO_GITHUB_REPO"); v != "" {
		cfg.GitHubRepo = v
	}
	if v := os.Getenv("TRIAGO_GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("TRIAGO_AWS_REGION"); v != "" {
		cfg.AWSRegion = v
	}
	if v := os.Getenv("TRIAGO_MODEL_ID"); v != "" {
		cfg.ModelID = v
	}
	if v := os.Getenv("TRIAGO_REPORT_CRON"); v != "" {
		cfg.ReportCron = v
	}
	if v := os.Getenv("TRIAGO_ANALYZE_TRENDS"); v != "" {
		cfg.AnalyzeTrends = v == "true" || v == "1"
	}

	return cfg
}
