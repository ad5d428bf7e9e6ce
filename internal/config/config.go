package config

import (
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the chat backend.
type Config struct {
	Port int

	MCPProdURL string
	MCPTestURL string
	MCPAPIKey  string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	DefaultModel     string
	MaxTokens        int
	MaxSteps         int
	ThinkingBudget   int // 0 disables extended thinking

	StateDir      string
	LedgerEnabled bool
	TailRetention time.Duration
	Verbose       bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/awschat).
func Load() Config {
	return Config{
		Port:             viper.GetInt("port"),
		MCPProdURL:       viper.GetString("mcp_prod_url"),
		MCPTestURL:       viper.GetString("mcp_test_url"),
		MCPAPIKey:        viper.GetString("mcp_api_key"),
		AnthropicAPIKey:  viper.GetString("anthropic_api_key"),
		AnthropicBaseURL: viper.GetString("anthropic_base_url"),
		DefaultModel:     viper.GetString("default_model"),
		MaxTokens:        viper.GetInt("max_tokens"),
		MaxSteps:         viper.GetInt("max_steps"),
		ThinkingBudget:   viper.GetInt("thinking_budget"),
		StateDir:         viper.GetString("state_dir"),
		LedgerEnabled:    viper.GetBool("ledger_enabled"),
		TailRetention:    viper.GetDuration("tail_retention"),
		Verbose:          viper.GetBool("verbose"),
	}
}

// Validate reports configuration that would make every chat request fail.
func (c Config) Validate() error {
	var missing []string
	if c.MCPProdURL == "" {
		missing = append(missing, "mcp_prod_url")
	}
	if c.MCPTestURL == "" {
		missing = append(missing, "mcp_test_url")
	}
	if c.MaxSteps < 1 {
		return &Error{Key: "max_steps", Reason: "must be at least 1"}
	}
	if c.MaxTokens < 1 {
		return &Error{Key: "max_tokens", Reason: "must be at least 1"}
	}
	if len(missing) > 0 {
		return &Error{Key: missing[0], Reason: "is required"}
	}
	return nil
}

// Error describes a single invalid configuration key.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return "config: " + e.Key + " " + e.Reason
}
