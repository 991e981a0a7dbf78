// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Server       ServerConfig            `mapstructure:"server"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Search       SearchConfig            `mapstructure:"search"`
	SLA          SLAConfig               `mapstructure:"sla"`
	Tenants      map[string]TenantConfig `mapstructure:"tenants"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Search Configuration ---

type SearchConfig struct {
	DefaultIndex string         `mapstructure:"default_index"`
	Fulltext     FulltextConfig `mapstructure:"fulltext"`
	Page         PageConfig     `mapstructure:"page"`
	Section      SectionConfig  `mapstructure:"section"`
	Fields       FieldsConfig   `mapstructure:"fields"`
}

// FulltextConfig picks the full-text strategy: "all" tokenizes the query
// and matches every token against Field; "selected" matches tokens across
// Fields plus NestedFields.
type FulltextConfig struct {
	Mode         string   `mapstructure:"mode"`
	Analyzer     string   `mapstructure:"analyzer"`
	Field        string   `mapstructure:"field"`
	Fields       []string `mapstructure:"fields"`
	NestedPath   string   `mapstructure:"nested_path"`
	NestedFields []string `mapstructure:"nested_fields"`
	BoostFields  []string `mapstructure:"boost_fields"`
}

type PageConfig struct {
	DefaultSize int `mapstructure:"default_size"`
	MaxSize     int `mapstructure:"max_size"`
	MaxFrom     int `mapstructure:"max_from"`
}

type SectionConfig struct {
	Ladder      []float64 `mapstructure:"ladder"`
	Rate        int       `mapstructure:"rate"`
	BucketCount int       `mapstructure:"bucket_count"`
	TargetCount int       `mapstructure:"target_count"`
}

// FieldsConfig names the fixed-meaning document fields the orchestrator
// builds its default filters and aggregations on.
type FieldsConfig struct {
	Category  string `mapstructure:"category"`
	Brand     string `mapstructure:"brand"`
	Price     string `mapstructure:"price"`
	PropsPath string `mapstructure:"props_path"`
	CatsPath  string `mapstructure:"cats_path"`
}

// --- SLA / Message Pipeline Configuration ---

type SLAConfig struct {
	Tiers           map[string]TierConfig `mapstructure:"tiers"`
	Queue           QueueConfig           `mapstructure:"queue"`
	Schedule        ScheduleConfig        `mapstructure:"schedule"`
	DeadLetterLimit int64                 `mapstructure:"dead_letter_limit"`
}

// TierConfig holds the per-service-tier throughput and retry policy.
type TierConfig struct {
	MaxCalls       int                   `mapstructure:"max_calls"`
	WindowSeconds  int                   `mapstructure:"window_seconds"`
	IterSize       int                   `mapstructure:"iter_size"`
	Threads        int                   `mapstructure:"threads"`
	QueueThreshold int64                 `mapstructure:"queue_threshold"`
	Redo           map[string]RedoPolicy `mapstructure:"redo"`
}

// RedoPolicy is keyed per failure source (rpc_error, http_error,
// es_timeout, es_error, process_error).
type RedoPolicy struct {
	Enabled          bool      `mapstructure:"enabled"`
	Times            int       `mapstructure:"times"`
	IntervalsMinutes []float64 `mapstructure:"intervals_minutes"`
}

type QueueConfig struct {
	NormalKeyTemplate string `mapstructure:"normal_key_template"`
	RetryKeyTemplate  string `mapstructure:"retry_key_template"`
	DeadLetterKey     string `mapstructure:"dead_letter_key"`
	PendingSetKey     string `mapstructure:"pending_set_key"`
}

type ScheduleConfig struct {
	NormalIntervalMS    int `mapstructure:"normal_interval_ms"`
	RetryIntervalMS     int `mapstructure:"retry_interval_ms"`
	ThresholdIntervalMS int `mapstructure:"threshold_interval_ms"`
}

// TenantConfig carries per-tenant overrides over the tier defaults.
type TenantConfig struct {
	Tier     string `mapstructure:"tier"`
	MaxCalls int    `mapstructure:"max_calls"`
	IterSize int    `mapstructure:"iter_size"`
	Index    string `mapstructure:"index"`
}

// --- Integrations ---

type IntegrationConfig struct {
	AWS AWSConfig `mapstructure:"aws"`
}

type AWSConfig struct {
	Region string    `mapstructure:"region"`
	SNS    SNSConfig `mapstructure:"sns"`
	SES    SESConfig `mapstructure:"ses"`
}

type SNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	TopicARN string `mapstructure:"topic_arn"`
}

type SESConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	FromEmail string   `mapstructure:"from_email"`
	ToEmails  []string `mapstructure:"to_emails"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Tier returns the tier name of a tenant, defaulting to "experience".
func (c *Config) Tier(tenantID string) string {
	if t, ok := c.Tenants[tenantID]; ok && t.Tier != "" {
		return t.Tier
	}
	return "experience"
}

// TierConfigFor resolves a tenant's tier config with per-tenant overrides
// applied over the tier defaults.
func (c *Config) TierConfigFor(tenantID string) TierConfig {
	tier := c.SLA.Tiers[c.Tier(tenantID)]
	if t, ok := c.Tenants[tenantID]; ok {
		if t.MaxCalls > 0 {
			tier.MaxCalls = t.MaxCalls
		}
		if t.IterSize > 0 {
			tier.IterSize = t.IterSize
		}
	}
	return tier
}
