// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_REDIS_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "search-platform"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		cfg.Database.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}

	if cfg.Search.Fulltext.Mode == "" {
		cfg.Search.Fulltext.Mode = "all"
	}
	if cfg.Search.Fulltext.Analyzer == "" {
		cfg.Search.Fulltext.Analyzer = "standard"
	}
	if cfg.Search.Fulltext.Field == "" {
		cfg.Search.Fulltext.Field = "title"
	}
	if cfg.Search.Page.DefaultSize == 0 {
		cfg.Search.Page.DefaultSize = 10
	}
	if cfg.Search.Page.MaxSize == 0 {
		cfg.Search.Page.MaxSize = 100
	}
	if cfg.Search.Page.MaxFrom == 0 {
		cfg.Search.Page.MaxFrom = 10000
	}
	if len(cfg.Search.Section.Ladder) == 0 {
		cfg.Search.Section.Ladder = []float64{10, 20, 30, 50, 100}
	}
	if cfg.Search.Section.Rate == 0 {
		cfg.Search.Section.Rate = 20
	}
	if cfg.Search.Section.BucketCount == 0 {
		cfg.Search.Section.BucketCount = 120
	}
	if cfg.Search.Section.TargetCount == 0 {
		cfg.Search.Section.TargetCount = 6
	}
	if cfg.Search.Fields.Category == "" {
		cfg.Search.Fields.Category = "category"
	}
	if cfg.Search.Fields.Brand == "" {
		cfg.Search.Fields.Brand = "brand"
	}
	if cfg.Search.Fields.Price == "" {
		cfg.Search.Fields.Price = "price"
	}
	if cfg.Search.Fields.PropsPath == "" {
		cfg.Search.Fields.PropsPath = "props"
	}
	if cfg.Search.Fields.CatsPath == "" {
		cfg.Search.Fields.CatsPath = "cats"
	}

	if cfg.SLA.Queue.NormalKeyTemplate == "" {
		cfg.SLA.Queue.NormalKeyTemplate = "sla:queue:%s"
	}
	if cfg.SLA.Queue.RetryKeyTemplate == "" {
		cfg.SLA.Queue.RetryKeyTemplate = "sla:retry:%s"
	}
	if cfg.SLA.Queue.DeadLetterKey == "" {
		cfg.SLA.Queue.DeadLetterKey = "sla:dead"
	}
	if cfg.SLA.Queue.PendingSetKey == "" {
		cfg.SLA.Queue.PendingSetKey = "sla:pending"
	}
	if cfg.SLA.Schedule.NormalIntervalMS == 0 {
		cfg.SLA.Schedule.NormalIntervalMS = 1000
	}
	if cfg.SLA.Schedule.RetryIntervalMS == 0 {
		cfg.SLA.Schedule.RetryIntervalMS = 30000
	}
	if cfg.SLA.Schedule.ThresholdIntervalMS == 0 {
		cfg.SLA.Schedule.ThresholdIntervalMS = 60000
	}
	if cfg.SLA.DeadLetterLimit == 0 {
		cfg.SLA.DeadLetterLimit = 10000
	}
	if cfg.SLA.Tiers == nil {
		cfg.SLA.Tiers = map[string]TierConfig{}
	}
	for _, name := range []string{"vip", "experience"} {
		tier, ok := cfg.SLA.Tiers[name]
		if !ok {
			tier = TierConfig{}
		}
		if tier.MaxCalls == 0 {
			if name == "vip" {
				tier.MaxCalls = 200
			} else {
				tier.MaxCalls = 50
			}
		}
		if tier.WindowSeconds == 0 {
			tier.WindowSeconds = 60
		}
		if tier.IterSize == 0 {
			if name == "vip" {
				tier.IterSize = 50
			} else {
				tier.IterSize = 10
			}
		}
		if tier.Threads == 0 {
			if name == "vip" {
				tier.Threads = 8
			} else {
				tier.Threads = 2
			}
		}
		if tier.QueueThreshold == 0 {
			tier.QueueThreshold = 5000
		}
		cfg.SLA.Tiers[name] = tier
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Search.Page.MaxSize < cfg.Search.Page.DefaultSize {
		return fmt.Errorf("search.page.max_size (%d) below default_size (%d)",
			cfg.Search.Page.MaxSize, cfg.Search.Page.DefaultSize)
	}
	if cfg.Search.Section.Rate <= 0 || cfg.Search.Section.TargetCount <= 0 {
		return fmt.Errorf("search.section rate and target_count must be positive")
	}
	for name, tier := range cfg.SLA.Tiers {
		if tier.WindowSeconds <= 0 {
			return fmt.Errorf("sla.tiers.%s.window_seconds must be positive", name)
		}
	}
	return nil
}
