// Package config loads the backend configuration from YAML with
// environment-variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Hedera      HederaConfig      `yaml:"hedera"`
	Economy     EconomyConfig     `yaml:"economy"`
	Fulfillment FulfillmentConfig `yaml:"fulfillment"`
	Redis       RedisConfig       `yaml:"redis"`
	Workers     []WorkerProfile   `yaml:"workers"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// HederaConfig identifies the operator account and any pre-created
// consensus topics. An empty PrivateKey selects mock mode.
type HederaConfig struct {
	AccountID  string            `yaml:"account_id"`
	PrivateKey string            `yaml:"private_key"`
	Network    string            `yaml:"network"`
	Topics     map[string]string `yaml:"topics"`
}

type EconomyConfig struct {
	WorkerShare         float64 `yaml:"worker_share"`
	HeartbeatSeconds    int     `yaml:"heartbeat_seconds"`
	SnapshotSeconds     int     `yaml:"snapshot_seconds"`
	MessageHistory      int     `yaml:"message_history"`
	TransactionHistory  int     `yaml:"transaction_history"`
	TaskQueueSize       int     `yaml:"task_queue_size"`
	SettlementQueueSize int     `yaml:"settlement_queue_size"`
}

type FulfillmentConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WorkerProfile declares one worker agent to boot with its skill set.
type WorkerProfile struct {
	Type   string   `yaml:"type"`
	Skills []string `yaml:"skills"`
}

// Default returns the configuration used when no YAML file is present.
// The three worker profiles match the standard demo roster.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8000", Env: "development"},
		Hedera: HederaConfig{
			AccountID: "0.0.5483526",
			Network:   "testnet",
		},
		Economy: EconomyConfig{
			WorkerShare:         0.8,
			HeartbeatSeconds:    30,
			SnapshotSeconds:     2,
			MessageHistory:      500,
			TransactionHistory:  200,
			TaskQueueSize:       32,
			SettlementQueueSize: 64,
		},
		Fulfillment: FulfillmentConfig{
			Model:     "claude-3-5-haiku-20241022",
			MaxTokens: 512,
		},
		Workers: []WorkerProfile{
			{Type: "summarizer", Skills: []string{"summarize", "tldr", "abstract"}},
			{Type: "code-reviewer", Skills: []string{"review", "lint", "security-scan"}},
			{Type: "data-analyst", Skills: []string{"analyze", "stats", "chart"}},
		},
	}
}

// Load reads the YAML config at path and applies environment overrides.
// A missing file is not an error; defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := os.Getenv("HEDERA_ACCOUNT_ID"); v != "" {
		c.Hedera.AccountID = v
	}
	if v := os.Getenv("HEDERA_PRIVATE_KEY"); v != "" {
		c.Hedera.PrivateKey = v
	}
	if v := os.Getenv("HEDERA_NETWORK"); v != "" {
		c.Hedera.Network = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Fulfillment.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	// Pre-created topic ids: HEDERA_TOPIC_REGISTRY=0.0.1234 etc.
	for _, name := range []string{"registry", "tasks", "results", "payments"} {
		env := "HEDERA_TOPIC_" + strings.ToUpper(name)
		if v := os.Getenv(env); v != "" {
			if c.Hedera.Topics == nil {
				c.Hedera.Topics = make(map[string]string)
			}
			c.Hedera.Topics[name] = v
		}
	}
}

// fillDefaults backstops zero values that a partial YAML file may leave.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Hedera.Network == "" {
		c.Hedera.Network = d.Hedera.Network
	}
	if c.Hedera.AccountID == "" {
		c.Hedera.AccountID = d.Hedera.AccountID
	}
	if c.Economy.WorkerShare <= 0 || c.Economy.WorkerShare > 1 {
		c.Economy.WorkerShare = d.Economy.WorkerShare
	}
	if c.Economy.HeartbeatSeconds <= 0 {
		c.Economy.HeartbeatSeconds = d.Economy.HeartbeatSeconds
	}
	if c.Economy.SnapshotSeconds <= 0 {
		c.Economy.SnapshotSeconds = d.Economy.SnapshotSeconds
	}
	if c.Economy.MessageHistory <= 0 {
		c.Economy.MessageHistory = d.Economy.MessageHistory
	}
	if c.Economy.TransactionHistory <= 0 {
		c.Economy.TransactionHistory = d.Economy.TransactionHistory
	}
	if c.Economy.TaskQueueSize <= 0 {
		c.Economy.TaskQueueSize = d.Economy.TaskQueueSize
	}
	if c.Economy.SettlementQueueSize <= 0 {
		c.Economy.SettlementQueueSize = d.Economy.SettlementQueueSize
	}
	if c.Fulfillment.Model == "" {
		c.Fulfillment.Model = d.Fulfillment.Model
	}
	if c.Fulfillment.MaxTokens <= 0 {
		c.Fulfillment.MaxTokens = d.Fulfillment.MaxTokens
	}
	if len(c.Workers) == 0 {
		c.Workers = d.Workers
	}
}
