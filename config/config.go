package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every tunable of the ledger engine. Values come from the
// environment with SECUREVOTE_ prefixed names.
type Config struct {
	Salt           string  `envconfig:"SALT"             default:"securevote-salt-2024"`
	DemoMode       bool    `envconfig:"DEMO_MODE"        default:"true"`
	DataDir        string  `envconfig:"DATA_DIR"         default:""`
	ListenAddress  string  `envconfig:"LISTEN_ADDRESS"   default:":8080"`
	BloomCapacity  uint64  `envconfig:"BLOOM_CAPACITY"   default:"100000"`
	BloomErrorRate float64 `envconfig:"BLOOM_ERROR_RATE" default:"0.01"`
	AuditStackMax  int     `envconfig:"AUDIT_STACK_MAX"  default:"10000"`
	QueueSize      int     `envconfig:"QUEUE_SIZE"       default:"256"`
	Debug          bool    `envconfig:"DEBUG"            default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("securevote", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Salt == "" {
		return fmt.Errorf("salt must not be empty")
	}
	if c.BloomCapacity == 0 {
		return fmt.Errorf("bloom capacity must be positive")
	}
	if c.BloomErrorRate <= 0 || c.BloomErrorRate >= 1 {
		return fmt.Errorf("bloom error rate must be in (0, 1), got %v", c.BloomErrorRate)
	}
	if c.AuditStackMax <= 0 {
		return fmt.Errorf("audit stack max must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	return nil
}
